package metrics

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a series of values.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	P95    float64 `json:"p95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize skips NaN values. An empty series gives a zero Summary.
func Summarize(values []float64) Summary {
	data := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		return Summary{}
	}

	s := Summary{N: len(data)}
	s.Mean, s.Std = stat.MeanStdDev(data, nil)
	if len(data) == 1 {
		s.Std = 0
	}
	s.Median, _ = data.Median()
	s.P95, _ = data.Percentile(95)
	s.Min, _ = data.Min()
	s.Max, _ = data.Max()
	return s
}

// RMSE returns the root mean squared difference of two series, skipping
// pairs with a NaN.
func RMSE(a, b []float64) float64 {
	n := min(len(a), len(b))
	sum, count := 0.0, 0
	for i := 0; i < n; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		d := a[i] - b[i]
		sum += d * d
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(count))
}
