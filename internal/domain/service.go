// Package domain defines the baseline calibration business logic: the
// lifecycle state machine, the readiness evaluator, and the orchestration of
// the statistical processing pipeline.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"example.com/baseline/internal/difficulty"
	"example.com/baseline/internal/stats"
)

// BaselineRepository captures the persistence operations the lifecycle
// manager needs. Implementations must serialize mutating calls per owner
// (the Postgres implementation takes an advisory transaction lock).
type BaselineRepository interface {
	FindActive(ctx context.Context, tenantID, userID string) (*Baseline, error)
	CreateBaseline(ctx context.Context, baseline Baseline) error
	// SaveDataPoint persists the point and the recomputed readiness snapshot
	// atomically, returning the fresh collection stats.
	SaveDataPoint(ctx context.Context, point DataPoint) (CollectionStats, error)
	CollectionStats(ctx context.Context, tenantID, baselineID string) (CollectionStats, error)
	MarkProcessing(ctx context.Context, tenantID, baselineID string) error
	ListValidPoints(ctx context.Context, tenantID, baselineID string) ([]DataPoint, error)
	CompleteBaseline(ctx context.Context, baseline Baseline, summary CalibrationSummary) error
	FailBaseline(ctx context.Context, tenantID, userID, baselineID, reason string) error
	ListPointsByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]DataPoint, *Cursor, error)
	Calibration(ctx context.Context, tenantID, userID string) (*CalibrationSummary, error)
}

// Service orchestrates baseline collection for all owners. It holds no
// per-owner state; serialization happens in the repository.
type Service struct {
	repo   BaselineRepository
	logger *log.Logger
	now    func() time.Time
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithLogger overrides the logger used for per-item ingestion failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service.
func NewService(repo BaselineRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: log.New(log.Writer(), "[baseline] ", log.LstdFlags),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a new collection window for the owner. It fails with
// ErrAlreadyActive when a collecting or processing baseline already exists.
func (s *Service) Start(ctx context.Context, tenantID, userID string, targetDays int) (*Baseline, error) {
	if targetDays <= 0 {
		targetDays = DefaultTargetDays
	}

	active, err := s.repo.FindActive(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrAlreadyActive
	}

	now := s.now()
	baseline := Baseline{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		UserID:     userID,
		Status:     BaselineStatusCollecting,
		StartedAt:  now,
		TargetDays: targetDays,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// The repository maps a single-active unique violation back to
	// ErrAlreadyActive, closing the FindActive/Create race.
	if err := s.repo.CreateBaseline(ctx, baseline); err != nil {
		return nil, err
	}
	return &baseline, nil
}

// IngestInput is one sample submitted for ingestion.
type IngestInput struct {
	Category   string
	DataType   string
	Value      float64
	Unit       string
	Source     string
	RecordedAt time.Time
	Metadata   map[string]string
}

func (in IngestInput) validate() (Category, error) {
	category, err := ParseCategory(in.Category)
	if err != nil {
		return "", err
	}
	if in.DataType == "" {
		return "", fmt.Errorf("%w: missing data type", ErrInvalidDataPoint)
	}
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return "", fmt.Errorf("%w: value must be finite", ErrInvalidDataPoint)
	}
	if in.Value < 0 {
		return "", fmt.Errorf("%w: value must be non-negative", ErrInvalidDataPoint)
	}
	return category, nil
}

// Ingest stores one data point against the owner's active baseline and
// re-evaluates readiness. Points are accepted while the baseline is
// collecting or processing, so late-arriving samples are not lost.
func (s *Service) Ingest(ctx context.Context, tenantID, userID string, in IngestInput) (*DataPoint, error) {
	active, err := s.repo.FindActive(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveBaseline
	}

	category, err := in.validate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	recordedAt := in.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = now
	}
	source := in.Source
	if source == "" {
		source = SourceManual
	}

	point := DataPoint{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		UserID:     userID,
		BaselineID: active.ID,
		Category:   category,
		DataType:   in.DataType,
		Value:      in.Value,
		Unit:       in.Unit,
		Source:     source,
		RecordedAt: recordedAt.UTC(),
		Metadata:   in.Metadata,
		Validated:  true,
		CreatedAt:  now,
	}

	if _, err := s.repo.SaveDataPoint(ctx, point); err != nil {
		return nil, err
	}
	return &point, nil
}

// BatchFailure records one rejected item of a batch.
type BatchFailure struct {
	Index  int
	Reason string
}

// BatchResult is the explicit outcome of a best-effort batch ingestion.
type BatchResult struct {
	Accepted []DataPoint
	Rejected []BatchFailure
}

// IngestBatch applies Ingest per item, collecting individual failures without
// aborting the batch. It fails as a whole only when no baseline is active.
func (s *Service) IngestBatch(ctx context.Context, tenantID, userID string, inputs []IngestInput) (BatchResult, error) {
	active, err := s.repo.FindActive(ctx, tenantID, userID)
	if err != nil {
		return BatchResult{}, err
	}
	if active == nil {
		return BatchResult{}, ErrNoActiveBaseline
	}

	var result BatchResult
	for i, in := range inputs {
		point, err := s.Ingest(ctx, tenantID, userID, in)
		if err != nil {
			s.logger.Printf("batch item %d rejected (tenant=%s, user=%s): %v", i, tenantID, userID, err)
			result.Rejected = append(result.Rejected, BatchFailure{Index: i, Reason: err.Error()})
			continue
		}
		result.Accepted = append(result.Accepted, *point)
	}
	return result, nil
}

// Stop finalizes the owner's active baseline: it verifies readiness, runs the
// statistical pipeline over all valid points, and persists metrics plus the
// profile calibration summary. Pipeline errors transition the baseline to
// failed and are returned to the caller; there is no automatic retry, a new
// Start is required after a failure.
func (s *Service) Stop(ctx context.Context, tenantID, userID string) (*Baseline, error) {
	active, err := s.repo.FindActive(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveBaseline
	}

	now := s.now()
	collectionStats, err := s.repo.CollectionStats(ctx, tenantID, active.ID)
	if err != nil {
		return nil, err
	}
	readiness := EvaluateReadiness(active.StartedAt, now, collectionStats)
	if !readiness.Ready() {
		return nil, &NotReadyError{Readiness: readiness}
	}

	if err := s.repo.MarkProcessing(ctx, tenantID, active.ID); err != nil {
		return nil, err
	}
	active.Status = BaselineStatusProcessing

	points, err := s.repo.ListValidPoints(ctx, tenantID, active.ID)
	if err != nil {
		return nil, s.fail(ctx, active, err)
	}
	if len(points) < MinDataPoints {
		return nil, s.fail(ctx, active, fmt.Errorf("%w: %d of %d", ErrInsufficientData, len(points), MinDataPoints))
	}

	s.applyMetrics(active, points)

	ended := now
	actual := stats.Round1(ended.Sub(active.StartedAt).Hours() / 24)
	active.Status = BaselineStatusCompleted
	active.EndedAt = &ended
	active.ActualDays = &actual
	active.ReadinessScore = readiness.Score
	active.ReadinessCriteria = readiness.Criteria
	active.UpdatedAt = now

	summary := CalibrationSummary{
		Status:     BaselineStatusCompleted,
		StartedAt:  active.StartedAt,
		EndedAt:    &ended,
		Difficulty: s.mapDifficulty(active.Metrics),
	}

	if err := s.repo.CompleteBaseline(ctx, *active, summary); err != nil {
		return nil, s.fail(ctx, active, err)
	}
	return active, nil
}

// applyMetrics runs the normalizer independently per category and aggregates
// the results onto the baseline. Categories with fewer than two clean samples
// are omitted.
func (s *Service) applyMetrics(baseline *Baseline, points []DataPoint) {
	normalized := make(map[Category][]float64)
	for _, p := range points {
		if p.Outlier {
			continue
		}
		normalized[p.Category] = append(normalized[p.Category], stats.Normalize(p.DataType, p.Value))
	}

	baseline.Metrics = make(map[Category]CategoryMetrics)
	baseline.ConfidenceIntervals = make(map[Category]ConfidenceInterval)
	baseline.NoiseFloors = make(map[Category]float64)
	baseline.DataPointCount = len(points)

	for _, category := range Categories() {
		analysis, ok := stats.Analyze(normalized[category])
		if !ok {
			continue
		}
		baseline.Metrics[category] = CategoryMetrics{
			Mean:     analysis.Summary.Mean,
			Median:   analysis.Summary.Median,
			StdDev:   analysis.Summary.StdDev,
			Min:      analysis.Summary.Min,
			Max:      analysis.Summary.Max,
			Baseline: analysis.Summary.Mean,
		}
		baseline.ConfidenceIntervals[category] = ConfidenceInterval{
			Lower: analysis.Confidence.Lower,
			Upper: analysis.Confidence.Upper,
		}
		baseline.NoiseFloors[category] = analysis.NoiseFloor
	}
}

// mapDifficulty converts per-category baselines to multipliers, defaulting
// missing categories to neutral.
func (s *Service) mapDifficulty(metrics map[Category]CategoryMetrics) AdaptiveDifficulty {
	perCategory := make(map[Category]float64, len(Categories()))
	all := make([]float64, 0, len(Categories()))
	for _, category := range Categories() {
		multiplier := difficulty.NeutralMultiplier
		if m, ok := metrics[category]; ok {
			multiplier = difficulty.Multiplier(m.Baseline)
		}
		perCategory[category] = multiplier
		all = append(all, multiplier)
	}
	return NewAdaptiveDifficulty(difficulty.Overall(all), perCategory)
}

// fail records the terminal failed transition and returns the pipeline error.
func (s *Service) fail(ctx context.Context, baseline *Baseline, cause error) error {
	baseline.Status = BaselineStatusFailed
	if err := s.repo.FailBaseline(ctx, baseline.TenantID, baseline.UserID, baseline.ID, cause.Error()); err != nil {
		s.logger.Printf("failed to record baseline failure (baseline=%s): %v", baseline.ID, err)
		return errors.Join(cause, err)
	}
	return cause
}

// ListDataPoints fetches the owner's data points with cursor pagination.
func (s *Service) ListDataPoints(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]DataPoint, *Cursor, error) {
	return s.repo.ListPointsByUser(ctx, tenantID, userID, cursor, limit)
}

// Calibration returns the owner's profile calibration summary, or nil when
// none has been recorded yet.
func (s *Service) Calibration(ctx context.Context, tenantID, userID string) (*CalibrationSummary, error) {
	return s.repo.Calibration(ctx, tenantID, userID)
}

// CategoryProgress describes collection progress for one category.
type CategoryProgress struct {
	Count      int
	Completion float64
}

// Progress is the read-only collection view exposed to callers. Active is
// false when the owner has no collecting or processing baseline.
type Progress struct {
	Active         bool
	BaselineID     string
	Status         BaselineStatus
	StartedAt      time.Time
	TargetDays     int
	ElapsedDays    float64
	RemainingDays  float64
	DataPointCount int
	Readiness      Readiness
	Categories     map[Category]CategoryProgress
}

// Progress reports collection progress. It is idempotent and has no
// precondition: with no active baseline it returns an explicit inactive view.
func (s *Service) Progress(ctx context.Context, tenantID, userID string) (*Progress, error) {
	active, err := s.repo.FindActive(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return &Progress{Active: false}, nil
	}

	now := s.now()
	collectionStats, err := s.repo.CollectionStats(ctx, tenantID, active.ID)
	if err != nil {
		return nil, err
	}
	readiness := EvaluateReadiness(active.StartedAt, now, collectionStats)

	elapsed := stats.Round1(now.Sub(active.StartedAt).Hours() / 24)
	remaining := stats.Round1(float64(active.TargetDays) - elapsed)
	if remaining < 0 {
		remaining = 0
	}

	categories := make(map[Category]CategoryProgress, len(Categories()))
	for _, category := range Categories() {
		count := collectionStats.CategoryPoints[category]
		categories[category] = CategoryProgress{
			Count:      count,
			Completion: math.Min(100, float64(count)/float64(MinDataPoints)*100),
		}
	}

	return &Progress{
		Active:         true,
		BaselineID:     active.ID,
		Status:         active.Status,
		StartedAt:      active.StartedAt,
		TargetDays:     active.TargetDays,
		ElapsedDays:    elapsed,
		RemainingDays:  remaining,
		DataPointCount: collectionStats.TotalPoints,
		Readiness:      readiness,
		Categories:     categories,
	}, nil
}
