package scanner

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/recommendation"
	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/metrics"
)

// Savings fractions per detector. Rightsizing assumes one size class down;
// reservation assumes a one-year no-upfront commitment.
const (
	rightsizingSavingsFraction   = 0.50
	reservationSavingsFraction   = 0.30
	consolidationSavingsFraction = 0.20
)

// Optimizer runs every enabled detector over the priced inventory and the
// billing series, then dedupes and ranks the output
type Optimizer struct {
	cfg OptimizerConfig
}

// OptimizerConfig carries the detector thresholds
type OptimizerConfig struct {
	RightsizingCPUP99Threshold float64
	RightsizingBaseConfidence  float64
	AnomalyZScore              float64
	ConsolidationMinGroup      int
	SteadyStateCPUFloor        float64
}

// NewOptimizer builds the optimization stage
func NewOptimizer(cfg OptimizerConfig) *Optimizer {
	if cfg.ConsolidationMinGroup < 2 {
		cfg.ConsolidationMinGroup = 2
	}
	return &Optimizer{cfg: cfg}
}

// Run produces the ranked recommendation set for one scan. Detectors are
// independent; category filtering happens before ranking.
func (o *Optimizer) Run(scanID string, scanCfg scan.Config, resources []resource.Record, costs []cost.Record, billing []cost.DataPoint) []recommendation.Recommendation {
	costByID := make(map[string]cost.Record, len(costs))
	for _, c := range costs {
		costByID[c.ResourceID] = c
	}

	var recs []recommendation.Recommendation
	recs = append(recs, o.detectUnattachedStorage(scanID, resources, costByID)...)
	recs = append(recs, o.detectStoppedBilled(scanID, resources, costByID)...)
	recs = append(recs, o.detectRightsizing(scanID, resources, costByID)...)
	recs = append(recs, o.detectReservation(scanID, resources, costByID)...)
	recs = append(recs, o.detectCostAnomaly(scanID, billing)...)
	recs = append(recs, o.detectConsolidation(scanID, resources, costByID)...)

	recs = filterCategories(recs, scanCfg)
	recs = dedupe(recs)
	rank(recs)

	for i := range recs {
		recs[i].Automated = recs[i].EligibleForAutomation()
		metrics.RecordRecommendation(recs[i].Category)
	}
	return recs
}

// detectUnattachedStorage flags block storage nothing is using. Deleting a
// volume no instance references carries no workload risk.
func (o *Optimizer) detectUnattachedStorage(scanID string, resources []resource.Record, costs map[string]cost.Record) []recommendation.Recommendation {
	var out []recommendation.Recommendation
	for _, r := range resources {
		if r.Type != resource.TypeBlockStorage {
			continue
		}
		if r.State != resource.StateUnattached && r.Attributes[resource.AttrAttached] != "false" {
			continue
		}
		c := costs[r.ID]
		out = append(out, newRec(scanID, r, recommendation.Recommendation{
			Category:         recommendation.CategoryIdleRemoval,
			Title:            "Delete unattached volume " + displayName(r),
			Description:      fmt.Sprintf("Volume %s in %s is not attached to any instance and still accrues storage charges. Snapshot and delete it.", displayName(r), r.Region),
			Confidence:       1.0,
			PotentialSavings: c.Total(),
			Effort:           recommendation.EffortLow,
			RiskLevel:        recommendation.RiskLow,
			Detector:         recommendation.DetectorUnattachedStorage,
		}))
	}
	return out
}

// detectStoppedBilled flags stopped instances whose storage keeps billing
func (o *Optimizer) detectStoppedBilled(scanID string, resources []resource.Record, costs map[string]cost.Record) []recommendation.Recommendation {
	var out []recommendation.Recommendation
	for _, r := range resources {
		if r.Type != resource.TypeCompute && r.Type != resource.TypeDatabase {
			continue
		}
		if r.State != resource.StateStopped {
			continue
		}
		c := costs[r.ID]
		if c.StorageCost <= 0 {
			continue
		}
		out = append(out, newRec(scanID, r, recommendation.Recommendation{
			Category:         recommendation.CategoryIdleRemoval,
			Title:            "Stopped instance " + displayName(r) + " still accrues storage charges",
			Description:      fmt.Sprintf("%s has been stopped but its attached storage bills %.2f USD/month. Snapshot and terminate if it is no longer needed.", displayName(r), c.StorageCost),
			Confidence:       1.0,
			PotentialSavings: c.StorageCost,
			Effort:           recommendation.EffortLow,
			RiskLevel:        recommendation.RiskLow,
			Detector:         recommendation.DetectorStoppedBilled,
		}))
	}
	return out
}

// detectRightsizing flags running compute whose p99 CPU sits under the
// threshold for the whole window. Resources with no metrics data are never
// flagged; absence of data is not evidence of idleness.
func (o *Optimizer) detectRightsizing(scanID string, resources []resource.Record, costs map[string]cost.Record) []recommendation.Recommendation {
	var out []recommendation.Recommendation
	for _, r := range resources {
		if r.Type != resource.TypeCompute && r.Type != resource.TypeDatabase {
			continue
		}
		if r.State != resource.StateRunning {
			continue
		}
		if !r.Utilization.IsIdleCandidate(o.cfg.RightsizingCPUP99Threshold) {
			continue
		}
		c := costs[r.ID]
		if c.MonthlyCost <= 0 {
			continue
		}
		confidence := o.cfg.RightsizingBaseConfidence + 0.10*r.Utilization.Completeness
		if confidence > 1.0 {
			confidence = 1.0
		}
		out = append(out, newRec(scanID, r, recommendation.Recommendation{
			Category: recommendation.CategoryRightsizing,
			Title:    "Rightsize " + displayName(r),
			Description: fmt.Sprintf("%s (%s) peaked at %.1f%% CPU (p99) over the trailing window. Moving one size class down would roughly halve its compute cost.",
				displayName(r), r.Attributes[resource.AttrInstanceClass], r.Utilization.CPUP99),
			Confidence:       confidence,
			PotentialSavings: c.MonthlyCost * rightsizingSavingsFraction,
			Effort:           recommendation.EffortMedium,
			RiskLevel:        recommendation.RiskMedium,
			Detector:         recommendation.DetectorRightsizing,
		}))
	}
	return out
}

// detectReservation flags steady-state compute worth committing to
func (o *Optimizer) detectReservation(scanID string, resources []resource.Record, costs map[string]cost.Record) []recommendation.Recommendation {
	var out []recommendation.Recommendation
	for _, r := range resources {
		if r.Type != resource.TypeCompute && r.Type != resource.TypeDatabase {
			continue
		}
		if r.State != resource.StateRunning || !r.Utilization.HasData {
			continue
		}
		if r.Utilization.CPUMean < o.cfg.SteadyStateCPUFloor {
			continue
		}
		c := costs[r.ID]
		if c.MonthlyCost <= 0 {
			continue
		}
		out = append(out, newRec(scanID, r, recommendation.Recommendation{
			Category: recommendation.CategoryReservation,
			Title:    "Reserve capacity for " + displayName(r),
			Description: fmt.Sprintf("%s runs at a steady %.1f%% mean CPU. A one-year commitment would cut its on-demand rate by roughly %d%%.",
				displayName(r), r.Utilization.CPUMean, int(reservationSavingsFraction*100)),
			Confidence:       0.75,
			PotentialSavings: c.MonthlyCost * reservationSavingsFraction,
			Effort:           recommendation.EffortMedium,
			RiskLevel:        recommendation.RiskLow,
			Detector:         recommendation.DetectorReservation,
		}))
	}
	return out
}

// detectCostAnomaly z-scores the most recent day of actual spend against
// the rest of the series
func (o *Optimizer) detectCostAnomaly(scanID string, billing []cost.DataPoint) []recommendation.Recommendation {
	if len(billing) < 8 {
		return nil
	}

	history := billing[:len(billing)-1]
	latest := billing[len(billing)-1]

	var sum float64
	for _, p := range history {
		sum += p.Cost
	}
	mean := sum / float64(len(history))

	var ss float64
	for _, p := range history {
		d := p.Cost - mean
		ss += d * d
	}
	stddev := math.Sqrt(ss / float64(len(history)))
	if stddev == 0 {
		return nil
	}

	z := (latest.Cost - mean) / stddev
	if z < o.cfg.AnomalyZScore {
		return nil
	}

	deviationPct := (latest.Cost - mean) / mean * 100
	confidence := math.Min(0.9, 0.5+z/10)
	return []recommendation.Recommendation{{
		ID:       uuid.NewString(),
		ScanID:   scanID,
		Category: recommendation.CategoryArchitecture,
		Title:    fmt.Sprintf("Daily spend anomaly (%s severity)", anomalySeverity(deviationPct)),
		Description: fmt.Sprintf("Spend on %s was %.2f USD, %.0f%% above the trailing mean of %.2f USD/day (%.1f standard deviations). Investigate recent deployments or traffic changes.",
			latest.Date.Format("2006-01-02"), latest.Cost, deviationPct, mean, z),
		Confidence:       confidence,
		PotentialSavings: math.Max(0, (latest.Cost-mean)*30),
		Currency:         "USD",
		Effort:           recommendation.EffortMedium,
		RiskLevel:        anomalySeverity(deviationPct),
		Detector:         recommendation.DetectorCostAnomaly,
		CreatedAt:        time.Now().UTC(),
	}}
}

// anomalySeverity grades a spend deviation into a risk band
func anomalySeverity(deviationPct float64) string {
	switch {
	case deviationPct >= 100:
		return recommendation.RiskHigh
	case deviationPct >= 30:
		return recommendation.RiskMedium
	default:
		return recommendation.RiskLow
	}
}

// detectConsolidation clusters underutilized instances of the same class in
// the same region and suggests packing them
func (o *Optimizer) detectConsolidation(scanID string, resources []resource.Record, costs map[string]cost.Record) []recommendation.Recommendation {
	type groupKey struct {
		provider string
		rtype    resource.Type
		class    string
		region   string
	}
	groups := make(map[groupKey][]resource.Record)
	for _, r := range resources {
		if r.Type != resource.TypeCompute || r.State != resource.StateRunning {
			continue
		}
		if !r.Utilization.HasData || r.Utilization.CPUP95 >= o.cfg.SteadyStateCPUFloor {
			continue
		}
		key := groupKey{r.Provider, r.Type, r.Attributes[resource.AttrInstanceClass], r.Region}
		groups[key] = append(groups[key], r)
	}

	var out []recommendation.Recommendation
	for key, members := range groups {
		if len(members) < o.cfg.ConsolidationMinGroup {
			continue
		}
		var groupCost float64
		ids := make([]string, 0, len(members))
		for _, m := range members {
			groupCost += costs[m.ID].MonthlyCost
			ids = append(ids, m.ID)
		}
		sort.Strings(ids)
		out = append(out, recommendation.Recommendation{
			ID:       uuid.NewString(),
			ScanID:   scanID,
			Category: recommendation.CategoryArchitecture,
			Title:    fmt.Sprintf("Consolidate %d underutilized %s instances in %s", len(members), key.class, key.region),
			Description: fmt.Sprintf("%d %s instances in %s all stay under %.0f%% CPU (p95). Packing the workloads onto fewer hosts would reduce the fleet cost.",
				len(members), key.class, key.region, o.cfg.SteadyStateCPUFloor),
			Provider:         key.provider,
			Resources:        ids,
			Confidence:       0.6,
			PotentialSavings: groupCost * consolidationSavingsFraction,
			Currency:         "USD",
			Effort:           recommendation.EffortHigh,
			RiskLevel:        recommendation.RiskMedium,
			Detector:         recommendation.DetectorConsolidation,
			CreatedAt:        time.Now().UTC(),
		})
	}
	return out
}

func newRec(scanID string, r resource.Record, rec recommendation.Recommendation) recommendation.Recommendation {
	rec.ID = uuid.NewString()
	rec.ScanID = scanID
	rec.Provider = r.Provider
	rec.ResourceID = r.ID
	rec.Currency = "USD"
	rec.CreatedAt = time.Now().UTC()
	return rec
}

func filterCategories(recs []recommendation.Recommendation, cfg scan.Config) []recommendation.Recommendation {
	out := recs[:0]
	for _, r := range recs {
		if cfg.CategoryEnabled(r.Category) {
			out = append(out, r)
		}
	}
	return out
}

// dedupe keeps the highest-value recommendation per (resource, category)
func dedupe(recs []recommendation.Recommendation) []recommendation.Recommendation {
	type key struct {
		resourceID string
		category   string
	}
	best := make(map[key]int)
	var out []recommendation.Recommendation
	for _, r := range recs {
		if r.ResourceID == "" {
			out = append(out, r)
			continue
		}
		k := key{r.ResourceID, r.Category}
		if i, ok := best[k]; ok {
			if r.PotentialSavings > out[i].PotentialSavings {
				out[i] = r
			}
			continue
		}
		best[k] = len(out)
		out = append(out, r)
	}
	return out
}

// rank orders by savings descending, then confidence descending
func rank(recs []recommendation.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].PotentialSavings != recs[j].PotentialSavings {
			return recs[i].PotentialSavings > recs[j].PotentialSavings
		}
		return recs[i].Confidence > recs[j].Confidence
	})
}

func displayName(r resource.Record) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
