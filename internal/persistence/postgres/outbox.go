package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/baseline/internal/domain"
	"example.com/baseline/internal/events"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Baseline) string
}

// eventCatalog keys event types to their Kafka routing. Started/completed
// events partition by owner so per-owner ordering is preserved; state changes
// partition by baseline.
var eventCatalog = map[string]EventMetadata{
	"baseline.started": {
		Topic:         "baseline_events",
		SchemaSubject: "baseline_events-value",
		PartitionKeyFn: func(b domain.Baseline) string {
			return fmt.Sprintf("%s:%s", b.TenantID, b.UserID)
		},
	},
	"baseline.completed": {
		Topic:         "baseline_events",
		SchemaSubject: "baseline_events-value",
		PartitionKeyFn: func(b domain.Baseline) string {
			return fmt.Sprintf("%s:%s", b.TenantID, b.UserID)
		},
	},
	"baseline.state_changed": {
		Topic:         "baseline_state_changed",
		SchemaSubject: "baseline_state_changed-value",
		PartitionKeyFn: func(b domain.Baseline) string {
			return b.ID
		},
	},
}

// insertOutbox records an event row inside the caller's transaction, so event
// delivery shares the fate of the state change that produced it.
func insertOutbox(ctx context.Context, tx pgx.Tx, b domain.Baseline, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%s", b.ID, eventType, b.Status)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		b.TenantID,
		"baseline",
		b.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(b),
		body,
		dedupeKey,
	)
	return err
}

func toEventDifficulty(d domain.AdaptiveDifficulty) events.AdaptiveDifficulty {
	return events.AdaptiveDifficulty{
		Overall:      d.Overall,
		Strength:     d.Strength,
		Agility:      d.Agility,
		Intelligence: d.Intelligence,
		Vitality:     d.Vitality,
		Perception:   d.Perception,
	}
}
