// Package stats implements the baseline statistical normalizer: data-type
// normalization onto a shared 0-100 scale, IQR outlier removal, descriptive
// statistics, confidence intervals, and noise-floor estimation. Everything in
// this package is pure and operates on plain float64 slices.
package stats

import "math"

// normalizer maps a raw sample value onto the 0-100 scale.
type normalizer func(value float64) float64

// normalizers keys data-type tags to their scaling functions. Tags absent
// from this table pass through unchanged.
var normalizers = map[string]normalizer{
	// strength
	"pushups":       ratio(50),
	"situps":        ratio(75),
	"squats":        ratio(60),
	"plank_seconds": ratio(180),

	// agility
	"steps":            ratio(15000),
	"running_km":       ratio(10),
	"reaction_time_ms": inverted(150, 500),

	// intelligence
	"reading_minutes": ratio(120),
	"puzzle_score":    passthrough,
	"memory_score":    passthrough,

	// vitality
	"sleep_hours":  linear(4, 10),
	"water_liters": ratio(3),
	"energy_level": tenPoint,

	// perception
	"focus_minutes":   ratio(240),
	"awareness_score": tenPoint,

	// generic scales
	"score_0_100": passthrough,
	"score_1_10":  tenPoint,
}

// Normalize maps a raw value for the given data type onto the 0-100 scale.
// Unrecognized data types are returned unchanged.
func Normalize(dataType string, value float64) float64 {
	fn, ok := normalizers[dataType]
	if !ok {
		return value
	}
	return fn(value)
}

// Supported reports whether a data type has a registered normalizer.
func Supported(dataType string) bool {
	_, ok := normalizers[dataType]
	return ok
}

// ratio scales value/max onto 0-100, capped at 100.
func ratio(max float64) normalizer {
	return func(value float64) float64 {
		return math.Min(100, value/max*100)
	}
}

// linear maps [lo, hi] onto [0, 100], clamping outside the range.
func linear(lo, hi float64) normalizer {
	return func(value float64) float64 {
		return clamp((value-lo)/(hi-lo)*100, 0, 100)
	}
}

// inverted maps [best, worst] onto [100, 0] for lower-is-better measurements.
func inverted(best, worst float64) normalizer {
	return func(value float64) float64 {
		return clamp((worst-value)/(worst-best)*100, 0, 100)
	}
}

func passthrough(value float64) float64 {
	return clamp(value, 0, 100)
}

// tenPoint scales a 1-10 rating by ten, capped at 100.
func tenPoint(value float64) float64 {
	return clamp(value*10, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
