package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"example.com/baseline/internal/domain"
	"example.com/baseline/internal/events"
)

// sampleEventType is the only event type the sample handler accepts.
const sampleEventType = "sample.recorded"

// ingestor is the slice of the domain service the handler needs.
type ingestor interface {
	Ingest(ctx context.Context, tenantID, userID string, in domain.IngestInput) (*domain.DataPoint, error)
}

// SampleHandler ingests device-sourced samples published by wearable
// gateways into the owner's active baseline.
type SampleHandler struct {
	service ingestor
	logger  *log.Logger
}

// NewSampleHandler constructs a SampleHandler.
func NewSampleHandler(service ingestor) *SampleHandler {
	return &SampleHandler{
		service: service,
		logger:  log.New(log.Writer(), "[samples] ", log.LstdFlags),
	}
}

// Handle decodes a sample and ingests it. Samples that cannot ever succeed
// (malformed payloads, missing owner, no active baseline, validation
// failures) are logged and dropped so the partition keeps moving; transient
// errors are returned for redelivery.
func (h *SampleHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != sampleEventType {
		h.logger.Printf("skipping unexpected event type %q (topic=%s)", msg.EventType, msg.Topic)
		return nil
	}

	var sample events.SampleRecorded
	if err := json.Unmarshal(msg.Payload, &sample); err != nil {
		h.logger.Printf("dropping malformed sample (topic=%s, offset=%d): %v", msg.Topic, msg.Offset, err)
		recordSampleDropped(msg.Topic)
		return nil
	}
	if sample.TenantID == "" || sample.UserID == "" {
		h.logger.Printf("dropping sample without owner (topic=%s, offset=%d)", msg.Topic, msg.Offset)
		recordSampleDropped(msg.Topic)
		return nil
	}

	_, err := h.service.Ingest(ctx, sample.TenantID, sample.UserID, domain.IngestInput{
		Category:   sample.Category,
		DataType:   sample.DataType,
		Value:      sample.Value,
		Unit:       sample.Unit,
		Source:     domain.SourceDevice,
		RecordedAt: sample.RecordedAt,
		Metadata:   sample.Metadata,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveBaseline) || errors.Is(err, domain.ErrInvalidDataPoint) {
			h.logger.Printf("dropping sample (tenant=%s, user=%s): %v", sample.TenantID, sample.UserID, err)
			recordSampleDropped(msg.Topic)
			return nil
		}
		return err
	}
	return nil
}
