package stats

import (
	"math"
	"sort"
)

// zScore95 is the z value for a 95% confidence level, the only level this
// pipeline uses.
const zScore95 = 1.96

// MinCleanSamples is the smallest clean set a category needs to produce
// metrics. Below it the category is omitted from the result set entirely.
const MinCleanSamples = 2

// Summary holds descriptive statistics for one clean sample set, each value
// rounded to one decimal. StdDev is the population standard deviation.
type Summary struct {
	Mean   float64
	Median float64
	StdDev float64
	Min    float64
	Max    float64
}

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64
	Upper float64
}

// Analysis bundles everything computed for one category.
type Analysis struct {
	Summary    Summary
	Confidence Interval
	NoiseFloor float64
}

// Analyze runs outlier removal and the full descriptive pipeline over a set
// of normalized values. It returns false when fewer than MinCleanSamples
// survive filtering, in which case the category has no metrics.
func Analyze(normalized []float64) (Analysis, bool) {
	clean := RemoveOutliersIQR(normalized)
	if len(clean) < MinCleanSamples {
		return Analysis{}, false
	}

	summary := Describe(clean)
	return Analysis{
		Summary:    summary,
		Confidence: ConfidenceInterval95(summary.Mean, summary.StdDev, len(clean)),
		NoiseFloor: NoiseFloor(summary.StdDev),
	}, true
}

// Describe computes descriptive statistics over the given values. The caller
// guarantees at least one value.
func Describe(values []float64) Summary {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var sqDiff float64
	for _, v := range sorted {
		d := v - mean
		sqDiff += d * d
	}
	stdDev := math.Sqrt(sqDiff / float64(len(sorted)))

	return Summary{
		Mean:   Round1(mean),
		Median: Round1(median(sorted)),
		StdDev: Round1(stdDev),
		Min:    Round1(sorted[0]),
		Max:    Round1(sorted[len(sorted)-1]),
	}
}

// ConfidenceInterval95 computes the 95% confidence interval around the mean
// using margin = z * stdDev / sqrt(n).
func ConfidenceInterval95(mean, stdDev float64, n int) Interval {
	margin := zScore95 * stdDev / math.Sqrt(float64(n))
	return Interval{
		Lower: Round1(mean - margin),
		Upper: Round1(mean + margin),
	}
}

// NoiseFloor is twice the standard deviation of the clean set: the minimum
// change distinguishable from measurement noise.
func NoiseFloor(stdDev float64) float64 {
	return Round1(2 * stdDev)
}

// median averages the two middle values for even-sized sets. The input must
// be sorted and non-empty.
func median(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
