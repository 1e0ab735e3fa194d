// Package postgres provides pgx-backed persistence for baselines, data
// points, profile calibration summaries, and the transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/baseline/internal/domain"
	"example.com/baseline/internal/events"
	"example.com/baseline/internal/observability"
)

// Repository implements domain.BaselineRepository on Postgres. Every mutating
// method runs in a transaction that first takes a per-owner advisory lock, so
// start/ingest/stop for the same owner never interleave.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const baselineColumns = `baseline_id, tenant_id, user_id, status, started_at, target_days, ended_at, actual_days,
        data_point_count, metrics, confidence_intervals, noise_floors, readiness_score, readiness_criteria,
        failure_reason, created_at, updated_at`

// setTenant scopes the transaction to a tenant for row-level security.
func setTenant(ctx context.Context, tx pgx.Tx, tenantID string) error {
	_, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID)
	return err
}

// lockOwner serializes mutations per (tenant, user) for the duration of the
// transaction.
func lockOwner(ctx context.Context, tx pgx.Tx, tenantID, userID string) error {
	_, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", tenantID+":"+userID)
	return err
}

// FindActive returns the owner's collecting or processing baseline, or nil.
func (r *Repository) FindActive(ctx context.Context, tenantID, userID string) (*domain.Baseline, error) {
	query := `SELECT ` + baselineColumns + `
        FROM baselines
        WHERE tenant_id=$1 AND user_id=$2 AND status IN ($3, $4)`

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, query, tenantID, userID, domain.BaselineStatusCollecting, domain.BaselineStatusProcessing)
	baseline, err := scanBaseline(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return baseline, nil
}

// CreateBaseline inserts a new collecting baseline, mirrors the active status
// onto the owner's profile, and records the start events, all in one
// transaction. A concurrent active baseline surfaces as ErrAlreadyActive via
// the partial unique index.
func (r *Repository) CreateBaseline(ctx context.Context, b domain.Baseline) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, b.TenantID); err != nil {
		return err
	}
	if err := lockOwner(ctx, tx, b.TenantID, b.UserID); err != nil {
		return err
	}

	const insert = `INSERT INTO baselines (baseline_id, tenant_id, user_id, status, started_at, target_days,
            data_point_count, readiness_score, readiness_criteria, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,0,0,$7,$8,$9)`

	if _, err := tx.Exec(ctx, insert,
		b.ID, b.TenantID, b.UserID, b.Status, b.StartedAt, b.TargetDays,
		b.ReadinessCriteria, b.CreatedAt, b.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyActive
		}
		return err
	}

	summary := domain.CalibrationSummary{Status: domain.BaselineStatusCollecting, StartedAt: b.StartedAt}
	if err := upsertCalibration(ctx, tx, b.TenantID, b.UserID, summary); err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, b, "baseline.started", events.BaselineStarted{
		BaselineID: b.ID,
		TenantID:   b.TenantID,
		UserID:     b.UserID,
		TargetDays: b.TargetDays,
		StartedAt:  b.StartedAt,
	}); err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, b, "baseline.state_changed", events.BaselineStateChanged{
		BaselineID: b.ID,
		TenantID:   b.TenantID,
		UserID:     b.UserID,
		Status:     string(b.Status),
		OccurredAt: b.CreatedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SaveDataPoint stores an ingested sample, bumps the denormalized counter,
// and persists the recomputed readiness snapshot, all under the owner's
// advisory lock so concurrent ingests cannot overwrite each other's snapshot.
// It returns the collection stats computed inside the same transaction.
func (r *Repository) SaveDataPoint(ctx context.Context, p domain.DataPoint) (domain.CollectionStats, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.CollectionStats{}, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, p.TenantID); err != nil {
		return domain.CollectionStats{}, err
	}
	if err := lockOwner(ctx, tx, p.TenantID, p.UserID); err != nil {
		return domain.CollectionStats{}, err
	}

	const insert = `INSERT INTO data_points (data_point_id, baseline_id, tenant_id, user_id, category, data_type,
            value, unit, source, recorded_at, metadata, validated, outlier, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	if _, err := tx.Exec(ctx, insert,
		p.ID, p.BaselineID, p.TenantID, p.UserID, p.Category, p.DataType,
		p.Value, nullIfEmpty(p.Unit), p.Source, p.RecordedAt, p.Metadata, p.Validated, p.Outlier, p.CreatedAt,
	); err != nil {
		return domain.CollectionStats{}, err
	}

	var total int
	var startedAt time.Time
	if err := tx.QueryRow(ctx,
		`UPDATE baselines SET data_point_count = data_point_count + 1, updated_at = $2
         WHERE baseline_id = $1 RETURNING data_point_count, started_at`,
		p.BaselineID, p.CreatedAt,
	).Scan(&total, &startedAt); err != nil {
		return domain.CollectionStats{}, err
	}

	stats, err := collectionStats(ctx, tx, p.BaselineID, total)
	if err != nil {
		return domain.CollectionStats{}, err
	}

	readiness := domain.EvaluateReadiness(startedAt, p.CreatedAt, stats)
	if _, err := tx.Exec(ctx,
		`UPDATE baselines SET readiness_score = $2, readiness_criteria = $3, updated_at = $4
         WHERE baseline_id = $1`,
		p.BaselineID, readiness.Score, readiness.Criteria, p.CreatedAt,
	); err != nil {
		return domain.CollectionStats{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.CollectionStats{}, err
	}
	observability.RecordDataPointPersisted(p.CreatedAt)
	return stats, nil
}

// CollectionStats recomputes the owner's collection stats on demand.
func (r *Repository) CollectionStats(ctx context.Context, tenantID, baselineID string) (domain.CollectionStats, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.CollectionStats{}, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return domain.CollectionStats{}, err
	}

	var total int
	if err := tx.QueryRow(ctx, `SELECT data_point_count FROM baselines WHERE baseline_id = $1`, baselineID).Scan(&total); err != nil {
		return domain.CollectionStats{}, err
	}

	stats, err := collectionStats(ctx, tx, baselineID, total)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	return stats, tx.Commit(ctx)
}

// collectionStats gathers per-category counts (valid, non-outlier) and the
// most recent sample time within the caller's transaction.
func collectionStats(ctx context.Context, tx pgx.Tx, baselineID string, total int) (domain.CollectionStats, error) {
	stats := domain.CollectionStats{
		TotalPoints:    total,
		CategoryPoints: make(map[domain.Category]int),
	}

	rows, err := tx.Query(ctx,
		`SELECT category, COUNT(*) FROM data_points
         WHERE baseline_id = $1 AND validated AND NOT outlier
         GROUP BY category`,
		baselineID,
	)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var category domain.Category
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return domain.CollectionStats{}, err
		}
		stats.CategoryPoints[category] = count
	}
	if err := rows.Err(); err != nil {
		return domain.CollectionStats{}, err
	}

	var last *time.Time
	if err := tx.QueryRow(ctx,
		`SELECT MAX(recorded_at) FROM data_points WHERE baseline_id = $1 AND validated`,
		baselineID,
	).Scan(&last); err != nil {
		return domain.CollectionStats{}, err
	}
	stats.LastPointAt = last
	return stats, nil
}

// MarkProcessing transitions collecting -> processing, mirrors the status to
// the profile, and records the state event.
func (r *Repository) MarkProcessing(ctx context.Context, tenantID, baselineID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return err
	}

	var b domain.Baseline
	if err := tx.QueryRow(ctx,
		`SELECT baseline_id, tenant_id, user_id, started_at FROM baselines WHERE baseline_id = $1 FOR UPDATE`,
		baselineID,
	).Scan(&b.ID, &b.TenantID, &b.UserID, &b.StartedAt); err != nil {
		return err
	}
	if err := lockOwner(ctx, tx, b.TenantID, b.UserID); err != nil {
		return err
	}

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE baselines SET status = $2, updated_at = $3 WHERE baseline_id = $1 AND status = $4`,
		baselineID, domain.BaselineStatusProcessing, now, domain.BaselineStatusCollecting,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("baseline %s is not collecting", baselineID)
	}

	summary := domain.CalibrationSummary{Status: domain.BaselineStatusProcessing, StartedAt: b.StartedAt}
	if err := upsertCalibration(ctx, tx, b.TenantID, b.UserID, summary); err != nil {
		return err
	}

	b.Status = domain.BaselineStatusProcessing
	if err := insertOutbox(ctx, tx, b, "baseline.state_changed", events.BaselineStateChanged{
		BaselineID: b.ID,
		TenantID:   b.TenantID,
		UserID:     b.UserID,
		Status:     string(domain.BaselineStatusProcessing),
		OccurredAt: now,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListValidPoints loads every validated data point of a baseline in recording
// order, for the processing pipeline.
func (r *Repository) ListValidPoints(ctx context.Context, tenantID, baselineID string) ([]domain.DataPoint, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT `+dataPointColumns+`
         FROM data_points WHERE baseline_id = $1 AND validated
         ORDER BY recorded_at, data_point_id`,
		baselineID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points, err := scanDataPoints(rows)
	if err != nil {
		return nil, err
	}
	return points, tx.Commit(ctx)
}

// CompleteBaseline persists the computed metrics, upserts the profile
// calibration summary, and records the completion events atomically.
func (r *Repository) CompleteBaseline(ctx context.Context, b domain.Baseline, summary domain.CalibrationSummary) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, b.TenantID); err != nil {
		return err
	}
	if err := lockOwner(ctx, tx, b.TenantID, b.UserID); err != nil {
		return err
	}

	const update = `UPDATE baselines
        SET status = $2, ended_at = $3, actual_days = $4, data_point_count = $5,
            metrics = $6, confidence_intervals = $7, noise_floors = $8,
            readiness_score = $9, readiness_criteria = $10, updated_at = $11
        WHERE baseline_id = $1 AND status = $12`

	tag, err := tx.Exec(ctx, update,
		b.ID, b.Status, b.EndedAt, b.ActualDays, b.DataPointCount,
		b.Metrics, b.ConfidenceIntervals, b.NoiseFloors,
		b.ReadinessScore, b.ReadinessCriteria, b.UpdatedAt,
		domain.BaselineStatusProcessing,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("baseline %s is not processing", b.ID)
	}

	if err := upsertCalibration(ctx, tx, b.TenantID, b.UserID, summary); err != nil {
		return err
	}

	completedAt := b.UpdatedAt
	if err := insertOutbox(ctx, tx, b, "baseline.completed", events.BaselineCompleted{
		BaselineID:     b.ID,
		TenantID:       b.TenantID,
		UserID:         b.UserID,
		CompletedAt:    completedAt,
		DataPointCount: b.DataPointCount,
		Difficulty:     toEventDifficulty(summary.Difficulty),
	}); err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, b, "baseline.state_changed", events.BaselineStateChanged{
		BaselineID: b.ID,
		TenantID:   b.TenantID,
		UserID:     b.UserID,
		Status:     string(domain.BaselineStatusCompleted),
		OccurredAt: completedAt,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordBaselineCompleted(completedAt)
	return nil
}

// FailBaseline records the terminal failed transition, the failure reason,
// and the profile status mirror.
func (r *Repository) FailBaseline(ctx context.Context, tenantID, userID, baselineID, reason string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return err
	}
	if err := lockOwner(ctx, tx, tenantID, userID); err != nil {
		return err
	}

	now := time.Now().UTC()
	var startedAt time.Time
	if err := tx.QueryRow(ctx,
		`UPDATE baselines SET status = $2, failure_reason = $3, ended_at = $4, updated_at = $4
         WHERE baseline_id = $1 RETURNING started_at`,
		baselineID, domain.BaselineStatusFailed, reason, now,
	).Scan(&startedAt); err != nil {
		return err
	}

	summary := domain.CalibrationSummary{Status: domain.BaselineStatusFailed, StartedAt: startedAt, EndedAt: &now}
	if err := upsertCalibration(ctx, tx, tenantID, userID, summary); err != nil {
		return err
	}

	b := domain.Baseline{ID: baselineID, TenantID: tenantID, UserID: userID, Status: domain.BaselineStatusFailed}
	if err := insertOutbox(ctx, tx, b, "baseline.state_changed", events.BaselineStateChanged{
		BaselineID: baselineID,
		TenantID:   tenantID,
		UserID:     userID,
		Status:     string(domain.BaselineStatusFailed),
		OccurredAt: now,
		Reason:     reason,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordBaselineFailed()
	return nil
}

// ListPointsByUser returns the owner's data points newest first with cursor
// pagination.
func (r *Repository) ListPointsByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.DataPoint, *domain.Cursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT ` + dataPointColumns + `
        FROM data_points WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND (recorded_at, data_point_id) < ($4, $5)`
		args = append(args, cursor.RecordedAt, cursor.ID)
	}
	query += ` ORDER BY recorded_at DESC, data_point_id DESC LIMIT $3`

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	points, err := scanDataPoints(rows)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(points) == limit && limit > 0 {
		last := points[len(points)-1]
		next = &domain.Cursor{RecordedAt: last.RecordedAt, ID: last.ID}
	}
	return points, next, nil
}

// Calibration reads the owner's profile calibration summary, or nil when the
// owner has never started a baseline.
func (r *Repository) Calibration(ctx context.Context, tenantID, userID string) (*domain.CalibrationSummary, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, err
	}

	var raw []byte
	if err := tx.QueryRow(ctx,
		`SELECT calibration FROM profiles WHERE tenant_id=$1 AND user_id=$2`,
		tenantID, userID,
	).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	var summary domain.CalibrationSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func upsertCalibration(ctx context.Context, tx pgx.Tx, tenantID, userID string, summary domain.CalibrationSummary) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO profiles (tenant_id, user_id, calibration, updated_at)
         VALUES ($1,$2,$3,NOW())
         ON CONFLICT (tenant_id, user_id) DO UPDATE
            SET calibration = EXCLUDED.calibration, updated_at = NOW()`,
		tenantID, userID, summary,
	)
	return err
}

const dataPointColumns = `data_point_id, baseline_id, tenant_id, user_id, category, data_type, value, unit,
        source, recorded_at, metadata, validated, outlier, created_at`

func scanDataPoints(rows pgx.Rows) ([]domain.DataPoint, error) {
	points := make([]domain.DataPoint, 0)
	for rows.Next() {
		var p domain.DataPoint
		var unit *string
		if err := rows.Scan(&p.ID, &p.BaselineID, &p.TenantID, &p.UserID, &p.Category, &p.DataType, &p.Value, &unit,
			&p.Source, &p.RecordedAt, &p.Metadata, &p.Validated, &p.Outlier, &p.CreatedAt); err != nil {
			return nil, err
		}
		if unit != nil {
			p.Unit = *unit
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func scanBaseline(row pgx.Row) (*domain.Baseline, error) {
	var b domain.Baseline
	if err := row.Scan(&b.ID, &b.TenantID, &b.UserID, &b.Status, &b.StartedAt, &b.TargetDays, &b.EndedAt, &b.ActualDays,
		&b.DataPointCount, &b.Metrics, &b.ConfidenceIntervals, &b.NoiseFloors, &b.ReadinessScore, &b.ReadinessCriteria,
		&b.FailureReason, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
