package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/baseline/internal/domain"
	"example.com/baseline/internal/events"
)

type stubIngestor struct {
	calls  int
	tenant string
	user   string
	input  domain.IngestInput
	err    error
}

func (s *stubIngestor) Ingest(_ context.Context, tenantID, userID string, in domain.IngestInput) (*domain.DataPoint, error) {
	s.calls++
	s.tenant = tenantID
	s.user = userID
	s.input = in
	if s.err != nil {
		return nil, s.err
	}
	return &domain.DataPoint{ID: "dp-1"}, nil
}

func sampleMessage(t *testing.T, sample events.SampleRecorded) Message {
	t.Helper()
	payload, err := json.Marshal(sample)
	require.NoError(t, err)
	return Message{
		Topic:     "baseline_samples",
		EventType: "sample.recorded",
		TenantID:  sample.TenantID,
		Payload:   payload,
	}
}

func TestSampleHandlerIngestsDeviceSamples(t *testing.T) {
	ingestor := &stubIngestor{}
	handler := NewSampleHandler(ingestor)

	recorded := time.Date(2024, 5, 2, 7, 30, 0, 0, time.UTC)
	msg := sampleMessage(t, events.SampleRecorded{
		TenantID:   "tenant-1",
		UserID:     "user-1",
		Category:   "vitality",
		DataType:   "sleep_hours",
		Value:      7.5,
		Unit:       "hours",
		RecordedAt: recorded,
	})

	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Equal(t, 1, ingestor.calls)
	require.Equal(t, "tenant-1", ingestor.tenant)
	require.Equal(t, "user-1", ingestor.user)
	require.Equal(t, "vitality", ingestor.input.Category)
	require.Equal(t, domain.SourceDevice, ingestor.input.Source)
	require.Equal(t, recorded, ingestor.input.RecordedAt)
}

func TestSampleHandlerDropsWhenNoActiveBaseline(t *testing.T) {
	ingestor := &stubIngestor{err: domain.ErrNoActiveBaseline}
	handler := NewSampleHandler(ingestor)

	msg := sampleMessage(t, events.SampleRecorded{
		TenantID: "tenant-1",
		UserID:   "user-1",
		Category: "strength",
		DataType: "pushups",
		Value:    20,
	})

	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Equal(t, 1, ingestor.calls)
}

func TestSampleHandlerReturnsTransientErrors(t *testing.T) {
	ingestor := &stubIngestor{err: context.DeadlineExceeded}
	handler := NewSampleHandler(ingestor)

	msg := sampleMessage(t, events.SampleRecorded{
		TenantID: "tenant-1",
		UserID:   "user-1",
		Category: "agility",
		DataType: "reaction_time_ms",
		Value:    250,
	})

	require.Error(t, handler.Handle(context.Background(), msg))
}

func TestSampleHandlerDropsMalformedPayloads(t *testing.T) {
	ingestor := &stubIngestor{}
	handler := NewSampleHandler(ingestor)

	msg := Message{
		Topic:     "baseline_samples",
		EventType: "sample.recorded",
		Payload:   []byte(`{"tenant_id":`),
	}

	// Redelivery can never fix a malformed payload, so it must not error.
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Equal(t, 0, ingestor.calls)
}

func TestSampleHandlerDropsSamplesWithoutOwner(t *testing.T) {
	ingestor := &stubIngestor{}
	handler := NewSampleHandler(ingestor)

	msg := sampleMessage(t, events.SampleRecorded{
		Category: "strength",
		DataType: "pushups",
		Value:    20,
	})

	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Equal(t, 0, ingestor.calls)
}

func TestSampleHandlerSkipsForeignEventTypes(t *testing.T) {
	ingestor := &stubIngestor{}
	handler := NewSampleHandler(ingestor)

	msg := Message{Topic: "baseline_samples", EventType: "baseline.started", Payload: []byte(`{}`)}
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Equal(t, 0, ingestor.calls)
}
