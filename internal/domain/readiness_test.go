package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fullCoverage(perCategory int) map[Category]int {
	counts := make(map[Category]int)
	for _, c := range Categories() {
		counts[c] = perCategory
	}
	return counts
}

func TestEvaluateReadinessAllCriteriaMet(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-4 * 24 * time.Hour)
	last := now.Add(-2 * time.Hour)

	readiness := EvaluateReadiness(startedAt, now, CollectionStats{
		TotalPoints:    60,
		CategoryPoints: fullCoverage(12),
		LastPointAt:    &last,
	})

	require.True(t, readiness.Ready())
	require.Equal(t, 100, readiness.Score)
}

func TestEvaluateReadinessFreshBaseline(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-time.Hour)

	readiness := EvaluateReadiness(startedAt, now, CollectionStats{})

	require.False(t, readiness.Ready())
	require.False(t, readiness.Criteria.MinimumDays)
	require.False(t, readiness.Criteria.MinimumDataPoints)
	require.False(t, readiness.Criteria.AllCategoriesCovered)
	// A baseline younger than a day has not had a chance to gap yet.
	require.True(t, readiness.Criteria.NoLargeGaps)
	require.Equal(t, 25, readiness.Score)
}

func TestEvaluateReadinessUnderCoveredCategory(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-5 * 24 * time.Hour)
	last := now.Add(-time.Hour)

	counts := fullCoverage(15)
	counts[CategoryPerception] = 9

	readiness := EvaluateReadiness(startedAt, now, CollectionStats{
		TotalPoints:    69,
		CategoryPoints: counts,
		LastPointAt:    &last,
	})

	require.False(t, readiness.Ready())
	require.False(t, readiness.Criteria.AllCategoriesCovered)
	require.Equal(t, 75, readiness.Score)
}

func TestEvaluateReadinessDetectsIngestionGap(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-5 * 24 * time.Hour)
	last := now.Add(-30 * time.Hour)

	readiness := EvaluateReadiness(startedAt, now, CollectionStats{
		TotalPoints:    60,
		CategoryPoints: fullCoverage(12),
		LastPointAt:    &last,
	})

	require.False(t, readiness.Ready())
	require.False(t, readiness.Criteria.NoLargeGaps)
	require.Equal(t, 75, readiness.Score)
}

func TestEvaluateReadinessNoPointsAfterGrace(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-2 * 24 * time.Hour)

	readiness := EvaluateReadiness(startedAt, now, CollectionStats{})
	require.False(t, readiness.Criteria.NoLargeGaps)
}

func TestReadinessScoreIsMonotonicInCriteria(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-4 * 24 * time.Hour)
	last := now.Add(-time.Hour)

	sparse := EvaluateReadiness(startedAt, now, CollectionStats{
		TotalPoints:    10,
		CategoryPoints: fullCoverage(2),
		LastPointAt:    &last,
	})
	dense := EvaluateReadiness(startedAt, now, CollectionStats{
		TotalPoints:    60,
		CategoryPoints: fullCoverage(12),
		LastPointAt:    &last,
	})
	require.Greater(t, dense.Score, sparse.Score)
}
