package metrics

import (
	"sort"
	"time"

	"wifirtt/internal/model"
)

// trimThreshold is the smallest sample count for which the extremes are
// dropped before averaging.
const trimThreshold = 4

// Reduce summarizes RTT samples in milliseconds. It returns nil when values is
// empty. The average is taken over the trimmed set while min, max and AllMs
// reflect every sample.
func Reduce(values []float64) *model.LatencySummary {
	if len(values) == 0 {
		return nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	trimmed := Trimmed(sorted)
	sum := 0.0
	for _, v := range trimmed {
		sum += v
	}

	return &model.LatencySummary{
		AvgMs:   sum / float64(len(trimmed)),
		MinMs:   sorted[0],
		MaxMs:   sorted[len(sorted)-1],
		Samples: len(sorted),
		AllMs:   sorted,
	}
}

// Trimmed returns the subset of sorted used for the average: sorted without its
// first and last element when it holds at least four values, otherwise sorted
// itself.
func Trimmed(sorted []float64) []float64 {
	if len(sorted) < trimThreshold {
		return sorted
	}
	return sorted[1 : len(sorted)-1]
}

// ReduceSamples converts samples to milliseconds and reduces them.
func ReduceSamples(samples []model.LatencySample) *model.LatencySummary {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		values = append(values, Millis(s.Duration))
	}
	return Reduce(values)
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
