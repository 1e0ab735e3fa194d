package domain

import (
	"fmt"
	"time"
)

// Category identifies one of the five capability categories a baseline tracks.
type Category string

const (
	CategoryStrength     Category = "strength"
	CategoryAgility      Category = "agility"
	CategoryIntelligence Category = "intelligence"
	CategoryVitality     Category = "vitality"
	CategoryPerception   Category = "perception"
)

// Categories returns all categories in a stable order.
func Categories() []Category {
	return []Category{
		CategoryStrength,
		CategoryAgility,
		CategoryIntelligence,
		CategoryVitality,
		CategoryPerception,
	}
}

// ParseCategory validates a raw category tag.
func ParseCategory(raw string) (Category, error) {
	switch Category(raw) {
	case CategoryStrength, CategoryAgility, CategoryIntelligence, CategoryVitality, CategoryPerception:
		return Category(raw), nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidDataPoint, raw)
}

// BaselineStatus represents where a baseline sits in its lifecycle.
// Collecting and processing are the active states; completed and failed
// are terminal.
type BaselineStatus string

const (
	BaselineStatusCollecting BaselineStatus = "collecting"
	BaselineStatusProcessing BaselineStatus = "processing"
	BaselineStatusCompleted  BaselineStatus = "completed"
	BaselineStatusFailed     BaselineStatus = "failed"
)

// Active reports whether the status still accepts data points.
func (s BaselineStatus) Active() bool {
	return s == BaselineStatusCollecting || s == BaselineStatusProcessing
}

// CategoryMetrics holds the descriptive statistics computed for one category
// after outlier removal. Baseline equals the mean and feeds the difficulty
// mapping.
type CategoryMetrics struct {
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Baseline float64 `json:"baseline"`
}

// ConfidenceInterval is the 95% confidence interval around a category mean.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Baseline is one bounded collection attempt for an owner. A given owner has
// at most one baseline in an active status at any time.
type Baseline struct {
	ID                  string
	TenantID            string
	UserID              string
	Status              BaselineStatus
	StartedAt           time.Time
	TargetDays          int
	EndedAt             *time.Time
	ActualDays          *float64
	DataPointCount      int
	Metrics             map[Category]CategoryMetrics
	ConfidenceIntervals map[Category]ConfidenceInterval
	NoiseFloors         map[Category]float64
	ReadinessScore      int
	ReadinessCriteria   ReadinessCriteria
	FailureReason       *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AdaptiveDifficulty is the per-category multiplier set written to the owner's
// profile once a baseline completes. Multipliers range from 0.5 to 2.0;
// categories without metrics default to 1.0.
type AdaptiveDifficulty struct {
	Overall      float64 `json:"overall"`
	Strength     float64 `json:"strength"`
	Agility      float64 `json:"agility"`
	Intelligence float64 `json:"intelligence"`
	Vitality     float64 `json:"vitality"`
	Perception   float64 `json:"perception"`
}

// NewAdaptiveDifficulty assembles the profile multiplier set from per-category
// values, defaulting any absent category to the neutral 1.0.
func NewAdaptiveDifficulty(overall float64, perCategory map[Category]float64) AdaptiveDifficulty {
	pick := func(c Category) float64 {
		if m, ok := perCategory[c]; ok {
			return m
		}
		return 1.0
	}
	return AdaptiveDifficulty{
		Overall:      overall,
		Strength:     pick(CategoryStrength),
		Agility:      pick(CategoryAgility),
		Intelligence: pick(CategoryIntelligence),
		Vitality:     pick(CategoryVitality),
		Perception:   pick(CategoryPerception),
	}
}

// ForCategory returns the multiplier stored for a category.
func (d AdaptiveDifficulty) ForCategory(c Category) float64 {
	switch c {
	case CategoryStrength:
		return d.Strength
	case CategoryAgility:
		return d.Agility
	case CategoryIntelligence:
		return d.Intelligence
	case CategoryVitality:
		return d.Vitality
	case CategoryPerception:
		return d.Perception
	}
	return 1.0
}

// CalibrationSummary mirrors the baseline outcome onto the owner's profile.
type CalibrationSummary struct {
	Status     BaselineStatus     `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	EndedAt    *time.Time         `json:"ended_at,omitempty"`
	Difficulty AdaptiveDifficulty `json:"adaptive_difficulty"`
}
