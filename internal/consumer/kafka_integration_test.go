//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/baseline/internal/domain"
	"example.com/baseline/internal/events"
)

type recordingIngestor struct {
	mu      sync.Mutex
	samples []domain.IngestInput
}

func (r *recordingIngestor) Ingest(_ context.Context, tenantID, userID string, in domain.IngestInput) (*domain.DataPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, in)
	return &domain.DataPoint{ID: "dp-int", TenantID: tenantID, UserID: userID}, nil
}

func (r *recordingIngestor) snapshot() []domain.IngestInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.IngestInput(nil), r.samples...)
}

func TestKafkaSampleRoundTrip(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	topic := "baseline_samples"

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "baseline-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	ingestor := &recordingIngestor{}
	handler := NewSampleHandler(ingestor)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	proc := NewProcessor(reader, handler)
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	recorded := time.Now().UTC().Truncate(time.Second)
	sample := events.SampleRecorded{
		TenantID:   "tenant-int",
		UserID:     "user-int",
		Category:   "strength",
		DataType:   "pushups",
		Value:      25,
		Unit:       "reps",
		RecordedAt: recorded,
	}
	payload, err := json.Marshal(sample)
	require.NoError(t, err)

	err = writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(sample.UserID),
		Value: frame(t, 7, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("sample.recorded")},
			{Key: "tenant_id", Value: []byte(sample.TenantID)},
			{Key: "schema_subject", Value: []byte("baseline_samples-value")},
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(ingestor.snapshot()) >= 1
	}, 30*time.Second, 500*time.Millisecond)

	got := ingestor.snapshot()[0]
	require.Equal(t, "strength", got.Category)
	require.Equal(t, "pushups", got.DataType)
	require.Equal(t, 25.0, got.Value)
	require.Equal(t, domain.SourceDevice, got.Source)
	require.True(t, recorded.Equal(got.RecordedAt))
}
