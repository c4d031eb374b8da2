package providers

import (
	"testing"
	"time"

	"github.com/costscope/costscope/internal/domain/resource"
)

func TestPercentile(t *testing.T) {
	series := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	tests := []struct {
		p    float64
		want float64
	}{
		{50, 50},
		{95, 100},
		{99, 100},
		{10, 10},
	}

	for _, tt := range tests {
		if got := Percentile(series, tt.p); got != tt.want {
			t.Errorf("Percentile(%.0f) = %.1f, want %.1f", tt.p, got, tt.want)
		}
	}
}

func TestPercentileEmpty(t *testing.T) {
	if got := Percentile(nil, 99); got != 0 {
		t.Errorf("Percentile(nil) = %.1f, want 0", got)
	}
}

func TestSampleFromSeries(t *testing.T) {
	window := UtilizationWindow{
		Start:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Bucket: time.Hour,
	}

	sample := SampleFromSeries([]float64{5, 5, 5, 5, 5}, window)
	if !sample.HasData {
		t.Fatal("SampleFromSeries() produced a no-data sample from a real series")
	}
	if sample.Completeness != 0.5 {
		t.Errorf("Completeness = %.2f, want 0.50 (5 of 10 buckets)", sample.Completeness)
	}
	if sample.CPUMean != 5 {
		t.Errorf("CPUMean = %.1f, want 5", sample.CPUMean)
	}
}

func TestSampleFromSeriesEmpty(t *testing.T) {
	window := UtilizationWindow{Bucket: time.Hour}
	sample := SampleFromSeries(nil, window)
	if sample.HasData {
		t.Error("SampleFromSeries(nil) must yield an explicit no-data sample")
	}
	if sample != resource.NoData() {
		t.Errorf("SampleFromSeries(nil) = %+v, want NoData()", sample)
	}
}
