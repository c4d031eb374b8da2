package scanner

import (
	"testing"
	"time"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/recommendation"
	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/testutil"
)

func testOptimizer() *Optimizer {
	return NewOptimizer(OptimizerConfig{
		RightsizingCPUP99Threshold: 20.0,
		RightsizingBaseConfidence:  0.85,
		AnomalyZScore:              2.0,
		ConsolidationMinGroup:      3,
		SteadyStateCPUFloor:        40.0,
	})
}

func idleSample(p99 float64) resource.UtilizationSample {
	return resource.UtilizationSample{
		HasData:      true,
		Completeness: 1.0,
		CPUMean:      p99 / 2,
		CPUP50:       p99 / 2,
		CPUP95:       p99,
		CPUP99:       p99,
	}
}

func costFor(id string, monthly float64) cost.Record {
	return cost.Record{ResourceID: id, MonthlyCost: monthly, Currency: "USD"}
}

func TestUnattachedVolumeRecommendation(t *testing.T) {
	resources := []resource.Record{testutil.Volume("vol-1", "aws", "us-east-1", false, "200")}
	costs := []cost.Record{costFor("vol-1", 16)}

	recs := testOptimizer().Run("scan-1", scan.Config{}, resources, costs, nil)
	if len(recs) != 1 {
		t.Fatalf("Run() produced %d recommendations, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Detector != recommendation.DetectorUnattachedStorage {
		t.Errorf("Detector = %q, want %q", rec.Detector, recommendation.DetectorUnattachedStorage)
	}
	if rec.Confidence != 1.0 {
		t.Errorf("Confidence = %.2f, want 1.0", rec.Confidence)
	}
	if rec.PotentialSavings != 16 {
		t.Errorf("PotentialSavings = %.2f, want 16", rec.PotentialSavings)
	}
	if !rec.Automated {
		t.Error("a confidence-1.0 low-risk recommendation must be automation eligible")
	}
}

func TestRightsizingRequiresMetricsData(t *testing.T) {
	tests := []struct {
		name    string
		sample  resource.UtilizationSample
		wantRec bool
	}{
		{"idle with data", idleSample(5), true},
		{"busy with data", idleSample(90), false},
		{"no data never flags", resource.NoData(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources := []resource.Record{
				testutil.Compute("i-1", "aws", "us-east-1", "m5.large", tt.sample),
			}
			costs := []cost.Record{costFor("i-1", 70)}

			recs := testOptimizer().Run("scan-1", scan.Config{
				Categories: []string{recommendation.CategoryRightsizing},
			}, resources, costs, nil)

			if (len(recs) == 1) != tt.wantRec {
				t.Errorf("Run() produced %d rightsizing recommendations, wantRec=%v", len(recs), tt.wantRec)
			}
			if tt.wantRec {
				want := 70 * rightsizingSavingsFraction
				if recs[0].PotentialSavings != want {
					t.Errorf("PotentialSavings = %.2f, want %.2f", recs[0].PotentialSavings, want)
				}
				// base 0.85 plus full completeness bonus
				if diff := recs[0].Confidence - 0.95; diff < -1e-9 || diff > 1e-9 {
					t.Errorf("Confidence = %.2f, want 0.95", recs[0].Confidence)
				}
			}
		})
	}
}

func TestRankingOrdersBySavingsThenConfidence(t *testing.T) {
	resources := []resource.Record{
		testutil.Volume("vol-small", "aws", "us-east-1", false, "50"),
		testutil.Volume("vol-big", "aws", "us-east-1", false, "900"),
		testutil.Compute("i-idle", "aws", "us-east-1", "m5.2xlarge", idleSample(5)),
	}
	costs := []cost.Record{
		costFor("vol-small", 50),
		costFor("vol-big", 200),
		costFor("i-idle", 240), // rightsizing savings 120
	}

	recs := testOptimizer().Run("scan-1", scan.Config{
		Categories: []string{recommendation.CategoryIdleRemoval, recommendation.CategoryRightsizing},
	}, resources, costs, nil)

	want := []float64{200, 120, 50}
	if len(recs) != len(want) {
		t.Fatalf("Run() produced %d recommendations, want %d", len(recs), len(want))
	}
	for i, savings := range want {
		if recs[i].PotentialSavings != savings {
			t.Errorf("rank %d savings = %.2f, want %.2f", i, recs[i].PotentialSavings, savings)
		}
	}
}

func TestCostAnomalyDetector(t *testing.T) {
	day := func(i int, c float64) cost.DataPoint {
		return cost.DataPoint{Date: time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC), Cost: c}
	}

	tests := []struct {
		name    string
		series  []cost.DataPoint
		wantRec bool
	}{
		{
			name: "spike flags",
			series: []cost.DataPoint{
				day(0, 100), day(1, 102), day(2, 98), day(3, 101),
				day(4, 99), day(5, 100), day(6, 103), day(7, 97),
				day(8, 250),
			},
			wantRec: true,
		},
		{
			name: "steady spend stays quiet",
			series: []cost.DataPoint{
				day(0, 100), day(1, 102), day(2, 98), day(3, 101),
				day(4, 99), day(5, 100), day(6, 103), day(7, 97),
				day(8, 101),
			},
			wantRec: false,
		},
		{
			name:    "short series stays quiet",
			series:  []cost.DataPoint{day(0, 100), day(1, 500)},
			wantRec: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := testOptimizer().detectCostAnomaly("scan-1", tt.series)
			if (len(recs) == 1) != tt.wantRec {
				t.Errorf("detectCostAnomaly() produced %d recommendations, wantRec=%v", len(recs), tt.wantRec)
			}
		})
	}
}

func TestConsolidationNeedsMinimumGroup(t *testing.T) {
	makeFleet := func(n int) ([]resource.Record, []cost.Record) {
		var rs []resource.Record
		var cs []cost.Record
		for i := 0; i < n; i++ {
			id := "i-" + string(rune('a'+i))
			rs = append(rs, testutil.Compute(id, "aws", "us-east-1", "m5.large", idleSample(10)))
			cs = append(cs, costFor(id, 70))
		}
		return rs, cs
	}

	tests := []struct {
		name    string
		size    int
		wantRec bool
	}{
		{"two instances is below the floor", 2, false},
		{"three instances clusters", 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources, costs := makeFleet(tt.size)
			recs := testOptimizer().detectConsolidation("scan-1", resources, costMap(costs))
			if (len(recs) == 1) != tt.wantRec {
				t.Errorf("detectConsolidation() produced %d recommendations, wantRec=%v", len(recs), tt.wantRec)
			}
			if tt.wantRec && len(recs[0].Resources) != tt.size {
				t.Errorf("group lists %d resources, want %d", len(recs[0].Resources), tt.size)
			}
		})
	}
}

func TestAutomationEligibility(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		risk       string
		want       bool
	}{
		{"high confidence low risk", 0.95, recommendation.RiskLow, true},
		{"at the floor is not enough", 0.85, recommendation.RiskLow, false},
		{"high confidence medium risk", 0.95, recommendation.RiskMedium, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recommendation.Recommendation{Confidence: tt.confidence, RiskLevel: tt.risk}
			if got := rec.EligibleForAutomation(); got != tt.want {
				t.Errorf("EligibleForAutomation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func costMap(costs []cost.Record) map[string]cost.Record {
	out := make(map[string]cost.Record, len(costs))
	for _, c := range costs {
		out[c.ResourceID] = c
	}
	return out
}
