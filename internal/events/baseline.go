// Package events defines the event payloads exchanged with other services.
package events

import "time"

// BaselineStarted is emitted when a new collection window opens.
type BaselineStarted struct {
	BaselineID string    `json:"baseline_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	TargetDays int       `json:"target_days"`
	StartedAt  time.Time `json:"started_at"`
}

// BaselineStateChanged tracks lifecycle transitions (collecting, processing,
// completed, failed) for downstream consumers.
type BaselineStateChanged struct {
	BaselineID string    `json:"baseline_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
	Reason     string    `json:"reason,omitempty"`
}

// BaselineCompleted carries the computed calibration result. The reward and
// quest services consume this to apply the new difficulty multipliers.
type BaselineCompleted struct {
	BaselineID     string             `json:"baseline_id"`
	TenantID       string             `json:"tenant_id"`
	UserID         string             `json:"user_id"`
	CompletedAt    time.Time          `json:"completed_at"`
	DataPointCount int                `json:"data_point_count"`
	Difficulty     AdaptiveDifficulty `json:"adaptive_difficulty"`
}

// AdaptiveDifficulty mirrors the per-category multipliers written to the
// owner's profile.
type AdaptiveDifficulty struct {
	Overall      float64 `json:"overall"`
	Strength     float64 `json:"strength"`
	Agility      float64 `json:"agility"`
	Intelligence float64 `json:"intelligence"`
	Vitality     float64 `json:"vitality"`
	Perception   float64 `json:"perception"`
}

// SampleRecorded is the inbound payload published by device gateways when a
// wearable or companion app uploads a measurement.
type SampleRecorded struct {
	TenantID   string            `json:"tenant_id"`
	UserID     string            `json:"user_id"`
	Category   string            `json:"category"`
	DataType   string            `json:"data_type"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
