// Package mathutil holds the small numeric helpers shared by the
// measurement packages.
package mathutil

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Median calculates the median value of a slice of float64 values.
// For an even count it averages the two middle values. It returns NaN
// for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}

	// Create a copy to avoid modifying the original
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// PopMeanStd returns the mean and the population (biased) standard
// deviation. Both are NaN for an empty slice.
func PopMeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	return stat.PopMeanStdDev(values, nil)
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Ratio divides num by den, returning 0 when den is zero.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
