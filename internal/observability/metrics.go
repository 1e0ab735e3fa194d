package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	dataPointGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "baseline_service",
		Subsystem: "persistence",
		Name:      "last_data_point_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent data point persisted to Postgres.",
	})
	baselineCompletedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "baseline_service",
		Subsystem: "persistence",
		Name:      "last_baseline_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent baseline transitioned to completed.",
	})
	baselineFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "baseline_service",
		Subsystem: "persistence",
		Name:      "baselines_failed_total",
		Help:      "Number of baselines that ended in the terminal failed state.",
	})
)

func init() {
	prometheus.MustRegister(dataPointGauge, baselineCompletedGauge, baselineFailedCounter)
}

// RecordDataPointPersisted updates the ingestion watermark gauge.
func RecordDataPointPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	dataPointGauge.Set(float64(ts.Unix()))
}

// RecordBaselineCompleted updates the completion watermark gauge.
func RecordBaselineCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	baselineCompletedGauge.Set(float64(ts.Unix()))
}

// RecordBaselineFailed counts a terminal failure.
func RecordBaselineFailed() {
	baselineFailedCounter.Inc()
}
