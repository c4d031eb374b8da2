package scanner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/providers"
	"github.com/costscope/costscope/internal/testutil"
)

func mustTable(t *testing.T) *StaticPriceTable {
	t.Helper()
	table, err := LoadPriceTable("")
	if err != nil {
		t.Fatalf("LoadPriceTable() error = %v", err)
	}
	return table
}

func TestPriceTierOrdering(t *testing.T) {
	table := mustTable(t)

	tests := []struct {
		name       string
		live       providers.PricingClient
		rec        resource.Record
		wantSource string
	}{
		{
			name: "live tier wins when available",
			live: &testutil.FakePricingClient{
				ProviderName: "aws",
				Prices:       map[string]float64{"m5.large": 70.08},
			},
			rec:        testutil.Compute("i-1", "aws", "us-east-1", "m5.large", resource.NoData()),
			wantSource: cost.SourceLiveAPI,
		},
		{
			name: "static table when the live tier fails",
			live: &testutil.FakePricingClient{
				ProviderName: "aws",
				Err:          fmt.Errorf("pricing api unavailable"),
			},
			rec:        testutil.Compute("i-2", "aws", "us-east-1", "m5.large", resource.NoData()),
			wantSource: cost.SourceStaticTable,
		},
		{
			name:       "static table when there is no live tier",
			live:       nil,
			rec:        testutil.Compute("i-3", "azure", "eastus", "Standard_D2s_v3", resource.NoData()),
			wantSource: cost.SourceStaticTable,
		},
		{
			name:       "heuristic only when nothing knows the class",
			live:       nil,
			rec:        testutil.Compute("i-4", "aws", "us-east-1", "x9.mystery", resource.NoData()),
			wantSource: cost.SourceHeuristicFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live := map[string]providers.PricingClient{}
			if tt.live != nil {
				live[tt.rec.Provider] = tt.live
			}
			engine := NewPricingEngine(table, live, 0.95, testLogger())

			got := engine.priceOne(context.Background(), tt.rec)
			if got.PricingSource != tt.wantSource {
				t.Errorf("PricingSource = %q, want %q", got.PricingSource, tt.wantSource)
			}
			if got.MonthlyCost < 0 {
				t.Errorf("MonthlyCost = %.2f, want non-negative", got.MonthlyCost)
			}
			if tt.wantSource == cost.SourceHeuristicFallback && got.Confidence >= confidenceStaticTable {
				t.Errorf("heuristic Confidence = %.2f, must stay below the table tier", got.Confidence)
			}
		})
	}
}

func TestPriceStoppedCompute(t *testing.T) {
	table := mustTable(t)
	engine := NewPricingEngine(table, nil, 0.95, testLogger())

	rec := testutil.Compute("i-stopped", "aws", "us-east-1", "m5.large", resource.NoData())
	rec.State = resource.StateStopped
	rec.Attributes[resource.AttrStorageGB] = "100"

	got := engine.priceOne(context.Background(), rec)
	if got.MonthlyCost != 0 {
		t.Errorf("MonthlyCost = %.2f for stopped instance, want 0", got.MonthlyCost)
	}
	if got.StorageCost <= 0 {
		t.Error("StorageCost = 0 for stopped instance with attached storage, want positive")
	}
	// provenance reflects the storage lookup that produced the charge
	if got.PricingSource != cost.SourceStaticTable {
		t.Errorf("PricingSource = %q, want %q from the storage table lookup",
			got.PricingSource, cost.SourceStaticTable)
	}
}

func TestPriceStoppedComputeWithoutStorage(t *testing.T) {
	engine := NewPricingEngine(mustTable(t), nil, 0.95, testLogger())

	rec := testutil.Compute("i-bare", "aws", "us-east-1", "m5.large", resource.NoData())
	rec.State = resource.StateStopped

	got := engine.priceOne(context.Background(), rec)
	if got.Total() != 0 {
		t.Errorf("Total() = %.2f for stopped instance without storage, want 0", got.Total())
	}
	// no lookup happened, so no tier may claim the zero
	if got.PricingSource != "" {
		t.Errorf("PricingSource = %q, want empty when nothing was priced", got.PricingSource)
	}
	if got.Confidence != 1.0 {
		t.Errorf("Confidence = %.2f, want 1.0 for a charge that follows from the observed state", got.Confidence)
	}
}

func TestPriceUnattachedVolume(t *testing.T) {
	table := mustTable(t)
	engine := NewPricingEngine(table, nil, 0.95, testLogger())

	rec := testutil.Volume("vol-1", "aws", "us-east-1", false, "200")
	got := engine.priceOne(context.Background(), rec)

	want := 200 * 0.08
	if got.MonthlyCost != want {
		t.Errorf("MonthlyCost = %.2f, want %.2f", got.MonthlyCost, want)
	}
	if got.PricingSource != cost.SourceStaticTable {
		t.Errorf("PricingSource = %q, want %q", got.PricingSource, cost.SourceStaticTable)
	}
}

func TestReconcile(t *testing.T) {
	engine := NewPricingEngine(mustTable(t), nil, 0.95, testLogger())

	day := func(i int, c float64) cost.DataPoint {
		return cost.DataPoint{Date: time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC), Cost: c}
	}

	tests := []struct {
		name          string
		calculated    float64
		actuals       []cost.DataPoint
		wantValidated bool
	}{
		{
			name:          "close match validates",
			calculated:    300,
			actuals:       []cost.DataPoint{day(0, 10), day(1, 10), day(2, 10)}, // 10/day -> 300/month
			wantValidated: true,
		},
		{
			name:          "large variance fails validation",
			calculated:    600,
			actuals:       []cost.DataPoint{day(0, 10), day(1, 10), day(2, 10)},
			wantValidated: false,
		},
		{
			name:          "no billing data stays unvalidated",
			calculated:    300,
			actuals:       nil,
			wantValidated: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Reconcile(tt.calculated, tt.actuals)
			if got.Validated != tt.wantValidated {
				t.Errorf("Validated = %v, want %v (accuracy %.3f)", got.Validated, tt.wantValidated, got.Accuracy)
			}
			if got.Accuracy < 0 || got.Accuracy > 1 {
				t.Errorf("Accuracy = %.3f, want within [0,1]", got.Accuracy)
			}
		})
	}
}

func TestForecastSpend(t *testing.T) {
	var series []cost.DataPoint
	for i := 0; i < 14; i++ {
		series = append(series, cost.DataPoint{
			Date: time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC),
			Cost: 10,
		})
	}

	forecast := ForecastSpend(series, 30)
	if forecast == nil {
		t.Fatal("ForecastSpend() = nil for a 14-day series")
	}
	// flat 10/day forecasts 300 for the next 30 days
	if forecast.ForecastedCost < 299 || forecast.ForecastedCost > 301 {
		t.Errorf("ForecastedCost = %.2f, want ~300", forecast.ForecastedCost)
	}
	if forecast.LowerBound > forecast.ForecastedCost || forecast.UpperBound < forecast.ForecastedCost {
		t.Errorf("bounds [%.2f, %.2f] do not bracket the forecast %.2f",
			forecast.LowerBound, forecast.UpperBound, forecast.ForecastedCost)
	}
}

func TestForecastSpendNeedsHistory(t *testing.T) {
	short := []cost.DataPoint{{Date: time.Now(), Cost: 5}}
	if got := ForecastSpend(short, 30); got != nil {
		t.Errorf("ForecastSpend() = %+v for a 1-day series, want nil", got)
	}
}
