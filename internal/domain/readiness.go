package domain

import "time"

// Collection thresholds a baseline must clear before it can be finalized.
const (
	MinCollectionDays  = 3
	MinDataPoints      = 50
	MinCategoryPoints  = 10
	maxIngestionGap    = 24 * time.Hour
	readinessCriterion = 25 // each satisfied criterion contributes 25 points
)

// DefaultTargetDays is the collection window used when Start is called
// without an explicit duration.
const DefaultTargetDays = 7

// ReadinessCriteria are the four gates that must all hold before a baseline
// may be finalized.
type ReadinessCriteria struct {
	MinimumDays          bool `json:"minimum_days"`
	MinimumDataPoints    bool `json:"minimum_data_points"`
	AllCategoriesCovered bool `json:"all_categories_covered"`
	NoLargeGaps          bool `json:"no_large_gaps"`
}

// Readiness couples the criteria with the derived 0-100 score
// (25 points per satisfied criterion).
type Readiness struct {
	Criteria ReadinessCriteria
	Score    int
}

// Ready reports whether every criterion holds.
func (r Readiness) Ready() bool {
	c := r.Criteria
	return c.MinimumDays && c.MinimumDataPoints && c.AllCategoriesCovered && c.NoLargeGaps
}

// CollectionStats summarizes what has been collected for one baseline.
// CategoryPoints counts only valid, non-outlier samples.
type CollectionStats struct {
	TotalPoints    int
	CategoryPoints map[Category]int
	LastPointAt    *time.Time
}

// EvaluateReadiness computes the readiness state for a baseline from its
// start time and current collection stats. It is recomputed on every
// ingestion and on demand; it never mutates anything.
func EvaluateReadiness(startedAt, now time.Time, stats CollectionStats) Readiness {
	elapsed := now.Sub(startedAt)

	criteria := ReadinessCriteria{
		MinimumDays:          int(elapsed.Hours()/24) >= MinCollectionDays,
		MinimumDataPoints:    stats.TotalPoints >= MinDataPoints,
		AllCategoriesCovered: allCategoriesCovered(stats.CategoryPoints),
		NoLargeGaps:          noLargeGaps(elapsed, now, stats.LastPointAt),
	}

	score := 0
	for _, ok := range []bool{criteria.MinimumDays, criteria.MinimumDataPoints, criteria.AllCategoriesCovered, criteria.NoLargeGaps} {
		if ok {
			score += readinessCriterion
		}
	}
	return Readiness{Criteria: criteria, Score: score}
}

func allCategoriesCovered(counts map[Category]int) bool {
	for _, c := range Categories() {
		if counts[c] < MinCategoryPoints {
			return false
		}
	}
	return true
}

// noLargeGaps holds when a sample arrived within the last 24 hours, or when
// the baseline is younger than a day (grace period for brand-new baselines).
func noLargeGaps(elapsed time.Duration, now time.Time, lastPointAt *time.Time) bool {
	if elapsed < maxIngestionGap {
		return true
	}
	return lastPointAt != nil && now.Sub(*lastPointAt) <= maxIngestionGap
}
