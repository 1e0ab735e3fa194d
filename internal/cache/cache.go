// Package cache provides Redis-backed read-through caching for the hot
// progress and calibration reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/baseline/internal/domain"
)

// DefaultTTL bounds staleness for cached progress snapshots. Mutations
// invalidate eagerly, so the TTL only covers writes from other instances.
const DefaultTTL = 30 * time.Second

// Cache stores per-owner progress and calibration snapshots.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a Cache. A non-positive ttl falls back to DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func progressKey(tenantID, userID string) string {
	return fmt.Sprintf("baseline_progress:%s:%s", tenantID, userID)
}

func calibrationKey(tenantID, userID string) string {
	return fmt.Sprintf("baseline_calibration:%s:%s", tenantID, userID)
}

// GetProgress returns the cached progress snapshot, or nil on a miss.
func (c *Cache) GetProgress(ctx context.Context, tenantID, userID string) (*domain.Progress, error) {
	data, err := c.client.Get(ctx, progressKey(tenantID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get progress: %w", err)
	}

	var progress domain.Progress
	if err := json.Unmarshal([]byte(data), &progress); err != nil {
		return nil, fmt.Errorf("cache decode progress: %w", err)
	}
	return &progress, nil
}

// SetProgress stores a progress snapshot with the configured TTL.
func (c *Cache) SetProgress(ctx context.Context, tenantID, userID string, progress *domain.Progress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("cache encode progress: %w", err)
	}
	if err := c.client.Set(ctx, progressKey(tenantID, userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set progress: %w", err)
	}
	return nil
}

// GetCalibration returns the cached calibration summary, or nil on a miss.
func (c *Cache) GetCalibration(ctx context.Context, tenantID, userID string) (*domain.CalibrationSummary, error) {
	data, err := c.client.Get(ctx, calibrationKey(tenantID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get calibration: %w", err)
	}

	var summary domain.CalibrationSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, fmt.Errorf("cache decode calibration: %w", err)
	}
	return &summary, nil
}

// SetCalibration stores a calibration summary. Calibrations change only on
// lifecycle transitions, so they tolerate a longer TTL than progress.
func (c *Cache) SetCalibration(ctx context.Context, tenantID, userID string, summary *domain.CalibrationSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("cache encode calibration: %w", err)
	}
	if err := c.client.Set(ctx, calibrationKey(tenantID, userID), data, 10*c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set calibration: %w", err)
	}
	return nil
}

// Invalidate drops both snapshots for an owner. Called after any mutation.
func (c *Cache) Invalidate(ctx context.Context, tenantID, userID string) error {
	return c.client.Del(ctx, progressKey(tenantID, userID), calibrationKey(tenantID, userID)).Err()
}
