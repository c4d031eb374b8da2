package providers

import (
	"sort"

	"github.com/costscope/costscope/internal/domain/resource"
)

// Mean returns the arithmetic mean of values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Percentile returns the p-th percentile using nearest-rank on a sorted copy
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(float64(len(sorted))*p/100.0+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// SampleFromSeries builds a CPU utilization sample from a bucketed series.
// Completeness is the fraction of expected buckets that actually reported.
func SampleFromSeries(values []float64, window UtilizationWindow) resource.UtilizationSample {
	if len(values) == 0 {
		return resource.NoData()
	}

	expected := int(window.End.Sub(window.Start) / window.Bucket)
	completeness := 1.0
	if expected > 0 {
		completeness = float64(len(values)) / float64(expected)
		if completeness > 1 {
			completeness = 1
		}
	}

	return resource.UtilizationSample{
		HasData:      true,
		WindowStart:  window.Start,
		WindowEnd:    window.End,
		SampleCount:  len(values),
		Completeness: completeness,
		CPUMean:      Mean(values),
		CPUP50:       Percentile(values, 50),
		CPUP95:       Percentile(values, 95),
		CPUP99:       Percentile(values, 99),
	}
}
