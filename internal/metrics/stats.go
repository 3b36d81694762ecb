// internal/metrics/stats.go
package metrics

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Percentile returns the q-th quantile (q in [0,1]) of values
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}

func meanStdDev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean = stat.Mean(values, nil)
	if len(values) > 1 {
		stddev = stat.StdDev(values, nil)
	}
	return mean, stddev
}
