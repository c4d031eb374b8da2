package scanner

import (
	"context"
	"time"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/recommendation"
	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/insights"
	"github.com/costscope/costscope/internal/pkg/logger"
)

// forecastHorizonDays is how far ahead the spend forecast projects
const forecastHorizonDays = 30

// reportInput collects every stage's output for assembly
type reportInput struct {
	scanID   string
	tenantID string

	resources       []resource.Record
	costs           []cost.Record
	recommendations []recommendation.Recommendation
	audit           scan.SafetyAudit
	reconciliation  cost.Reconciliation
	billing         []cost.DataPoint
	coverage        float64
	failures        []scan.TaskFailure
}

// assembleReport produces the final report. Total savings can never exceed
// total spend; overlapping recommendations are scaled down proportionally
// to keep the headline figure honest.
func assembleReport(in reportInput, log *logger.Logger) *scan.Report {
	report := &scan.Report{
		ScanID:          in.scanID,
		TenantID:        in.tenantID,
		GeneratedAt:     time.Now().UTC(),
		Resources:       in.resources,
		Costs:           in.costs,
		Recommendations: in.recommendations,
		Audit:           in.audit,
		Reconciliation:  in.reconciliation,
		Coverage:        in.coverage,
		TaskFailures:    in.failures,
		Currency:        "USD",
	}

	for _, c := range in.costs {
		report.TotalMonthlyCost += c.Total()
	}
	for _, rec := range in.recommendations {
		report.TotalPotentialSavings += rec.PotentialSavings
	}

	if report.TotalPotentialSavings > report.TotalMonthlyCost && report.TotalPotentialSavings > 0 {
		scale := report.TotalMonthlyCost / report.TotalPotentialSavings
		log.WithFields(map[string]interface{}{
			"scan_id":     in.scanID,
			"raw_savings": report.TotalPotentialSavings,
			"total_cost":  report.TotalMonthlyCost,
		}).Warn("savings exceed total spend, scaling recommendations down")
		for i := range report.Recommendations {
			report.Recommendations[i].PotentialSavings *= scale
		}
		report.TotalPotentialSavings = report.TotalMonthlyCost
	}

	report.Forecast = ForecastSpend(in.billing, forecastHorizonDays)
	return report
}

// attachInsight adds the optional narrative. Best effort only.
func attachInsight(ctx context.Context, gen insights.Generator, report *scan.Report, log *logger.Logger) {
	if gen == nil {
		return
	}
	insight, err := gen.Summarize(ctx, report)
	if err != nil {
		log.WithError(err).Warn("insight generation skipped")
		return
	}
	report.Insight = insight
}
