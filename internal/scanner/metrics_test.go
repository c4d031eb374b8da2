package scanner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/providers"
	"github.com/costscope/costscope/internal/testutil"
)

func TestCollectorEnrichesResources(t *testing.T) {
	busy := resource.UtilizationSample{HasData: true, Completeness: 1, CPUMean: 60, CPUP99: 85}

	resources := []resource.Record{
		testutil.Compute("i-1", "aws", "us-east-1", "m5.large", resource.NoData()),
		testutil.Compute("i-2", "aws", "us-east-1", "m5.large", resource.NoData()),
	}
	caps := map[string]providers.Capability{
		"aws": {Metrics: &testutil.FakeMetricsClient{
			ProviderName: "aws",
			Samples:      map[string]resource.UtilizationSample{"i-1": busy},
		}},
	}

	collector := NewCollector(2, 30, time.Hour, testLogger())
	calls := collector.Run(context.Background(), resources, caps)

	if !resources[0].Utilization.HasData {
		t.Error("i-1 lost its sample")
	}
	if resources[0].Utilization.CPUP99 != 85 {
		t.Errorf("i-1 CPUP99 = %.1f, want 85", resources[0].Utilization.CPUP99)
	}
	// backend had nothing for i-2
	if resources[1].Utilization.HasData {
		t.Error("i-2 must carry an explicit no-data sample")
	}
	if len(calls) != 2 {
		t.Errorf("recorded %d calls, want 2", len(calls))
	}
}

func TestCollectorBackendFailureYieldsNoData(t *testing.T) {
	resources := []resource.Record{
		testutil.Compute("i-1", "aws", "us-east-1", "m5.large", resource.NoData()),
	}
	caps := map[string]providers.Capability{
		"aws": {Metrics: &testutil.FakeMetricsClient{
			ProviderName: "aws",
			Err:          fmt.Errorf("monitoring backend down"),
		}},
	}

	collector := NewCollector(1, 30, time.Hour, testLogger())
	collector.Run(context.Background(), resources, caps)

	if resources[0].Utilization.HasData {
		t.Error("a failed metrics fetch must yield no-data, not fabricated utilization")
	}
}

func TestCollectorWithoutCapability(t *testing.T) {
	resources := []resource.Record{
		testutil.Compute("vm-1", "azure", "eastus", "Standard_D2s_v3", resource.NoData()),
	}

	collector := NewCollector(1, 30, time.Hour, testLogger())
	calls := collector.Run(context.Background(), resources, map[string]providers.Capability{"azure": {}})

	if resources[0].Utilization.HasData {
		t.Error("provider without a metrics capability must yield no-data")
	}
	if len(calls) != 0 {
		t.Errorf("recorded %d calls without a metrics client, want 0", len(calls))
	}
}
