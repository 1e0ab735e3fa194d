package domain

import "time"

// Data point sources. Manual entries come from the API, device entries from
// the wearable sample consumer, system entries from other backend services.
const (
	SourceManual = "manual"
	SourceDevice = "device"
	SourceSystem = "system"
)

// DataPoint is a single timestamped sample attributed to one baseline.
// Immutable after ingestion; the outlier flag is only set by later analysis
// jobs, never by the in-memory normalizer.
type DataPoint struct {
	ID         string
	TenantID   string
	UserID     string
	BaselineID string
	Category   Category
	DataType   string
	Value      float64
	Unit       string
	Source     string
	RecordedAt time.Time
	Metadata   map[string]string
	Validated  bool
	Outlier    bool
	CreatedAt  time.Time
}

// Cursor models the pagination token for data point listings.
type Cursor struct {
	RecordedAt time.Time
	ID         string
}
