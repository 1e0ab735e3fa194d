// Package difficulty maps normalized baseline scores onto gameplay
// multipliers. The mapping is deterministic and piecewise linear.
package difficulty

import "math"

// Multiplier bounds and the neutral value for categories without metrics.
const (
	MinMultiplier     = 0.5
	MaxMultiplier     = 2.0
	NeutralMultiplier = 1.0
)

// Multiplier converts a 0-100 baseline score into a 0.5-2.0 difficulty
// multiplier. Scores outside the range clamp to the nearest bound.
func Multiplier(baseline float64) float64 {
	switch {
	case baseline < 0:
		return MinMultiplier
	case baseline < 30:
		return 0.5 + baseline/30*0.2
	case baseline < 60:
		return 0.7 + (baseline-30)/30*0.3
	case baseline < 80:
		return 1.0 + (baseline-60)/20*0.5
	case baseline <= 100:
		return 1.5 + (baseline-80)/20*0.5
	}
	return MaxMultiplier
}

// Overall averages the per-category multipliers, rounded to two decimals.
func Overall(multipliers []float64) float64 {
	if len(multipliers) == 0 {
		return NeutralMultiplier
	}
	var sum float64
	for _, m := range multipliers {
		sum += m
	}
	return math.Round(sum/float64(len(multipliers))*100) / 100
}
