package stats

import "sort"

// minOutlierSamples is the smallest set IQR filtering applies to. With fewer
// values the quartile indexes collapse and filtering would be meaningless.
const minOutlierSamples = 4

// RemoveOutliersIQR filters values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
// Quartiles are taken at the 25th and 75th percentile indexes of the sorted
// set, without interpolation. Fewer than four values are returned as-is.
// The input slice is not modified.
func RemoveOutliersIQR(values []float64) []float64 {
	if len(values) < minOutlierSamples {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := sorted[len(sorted)/4]
	q3 := sorted[len(sorted)*3/4]
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lower && v <= upper {
			kept = append(kept, v)
		}
	}
	return kept
}
