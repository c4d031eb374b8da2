package scanner

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/logger"
	"github.com/costscope/costscope/internal/pkg/metrics"
	"github.com/costscope/costscope/internal/providers"
)

// Confidence assigned per pricing tier. Heuristic prices are order-of-
// magnitude estimates only and must never be silently upgraded.
const (
	confidenceLiveAPI     = 0.98
	confidenceStaticTable = 0.90
	confidenceHeuristic   = 0.40
)

// Heuristic fallback prices, monthly USD. Used only when neither the live
// API nor the static table knows the configuration.
var heuristicMonthlyUSD = map[resource.Type]float64{
	resource.TypeCompute:      75.0,
	resource.TypeDatabase:     120.0,
	resource.TypeCache:        60.0,
	resource.TypeLoadBalancer: 20.0,
	resource.TypeContainer:    50.0,
}

const heuristicStoragePerGB = 0.05

// PricingEngine resolves a monthly cost for every discovered resource by
// walking the tier chain: live provider pricing API, then the static price
// table, then a heuristic estimate.
type PricingEngine struct {
	table     *StaticPriceTable
	live      map[string]providers.PricingClient // by provider key; nil entry means no live tier
	threshold float64                            // reconciliation accuracy floor
	log       *logger.Logger

	mu    sync.Mutex
	calls []scan.CallRecord
}

// NewPricingEngine builds the engine for one scan
func NewPricingEngine(table *StaticPriceTable, live map[string]providers.PricingClient, accuracyThreshold float64, log *logger.Logger) *PricingEngine {
	return &PricingEngine{
		table:     table,
		live:      live,
		threshold: accuracyThreshold,
		log:       log,
	}
}

// Calls returns the provider API calls issued during pricing
func (e *PricingEngine) Calls() []scan.CallRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]scan.CallRecord, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *PricingEngine) recordCalls(calls []scan.CallRecord) {
	if len(calls) == 0 {
		return
	}
	e.mu.Lock()
	e.calls = append(e.calls, calls...)
	e.mu.Unlock()
}

// Price resolves costs for every resource. Pricing failures never fail the
// scan; a resource that cannot be priced falls through to the next tier.
func (e *PricingEngine) Price(ctx context.Context, resources []resource.Record) []cost.Record {
	records := make([]cost.Record, 0, len(resources))
	for _, rec := range resources {
		if ctx.Err() != nil {
			break
		}
		records = append(records, e.priceOne(ctx, rec))
	}
	return records
}

func (e *PricingEngine) priceOne(ctx context.Context, rec resource.Record) cost.Record {
	out := cost.Record{
		ResourceID: rec.ID,
		Provider:   rec.Provider,
		Currency:   "USD",
	}

	// Capacity-priced storage has no per-instance live price; the table
	// rate applies whether or not the volume is attached.
	if rec.Type == resource.TypeBlockStorage || rec.Type == resource.TypeObjectStore {
		e.priceStorage(rec, &out)
		return out
	}

	stopped := rec.State == resource.StateStopped

	// Stopped compute accrues no compute charges, but attached storage
	// keeps billing. Provenance comes from the storage lookup actually
	// performed; a resource with no charges at all priced nothing.
	if !stopped {
		if e.priceCompute(ctx, rec, &out) {
			e.addAttachedStorage(rec, &out)
			return out
		}
	} else {
		out.MonthlyCost = 0
		out.Notes = "stopped: no compute charges"
		if source := e.addAttachedStorage(rec, &out); source != "" {
			out.PricingSource = source
			out.Confidence = tierConfidence(source)
			metrics.RecordPricingTier(source)
		} else {
			out.Confidence = 1.0
		}
		return out
	}

	// Heuristic tier
	out.MonthlyCost = heuristicMonthlyUSD[rec.Type]
	out.PricingSource = cost.SourceHeuristicFallback
	out.Confidence = confidenceHeuristic
	out.Notes = fmt.Sprintf("no price found for class %q", rec.Attributes[resource.AttrInstanceClass])
	metrics.RecordPricingTier(out.PricingSource)
	e.addAttachedStorage(rec, &out)
	return out
}

// priceCompute tries the live tier then the static table. Returns false if
// neither produced a price.
func (e *PricingEngine) priceCompute(ctx context.Context, rec resource.Record, out *cost.Record) bool {
	if client := e.live[rec.Provider]; client != nil {
		price, calls, err := client.MonthlyPrice(ctx, rec)
		e.recordCalls(calls)
		if err == nil && price > 0 {
			out.MonthlyCost = price
			out.PricingSource = cost.SourceLiveAPI
			out.Confidence = confidenceLiveAPI
			metrics.RecordPricingTier(out.PricingSource)
			return true
		}
		if err != nil {
			e.log.WithFields(map[string]interface{}{
				"provider":    rec.Provider,
				"resource_id": rec.ID,
			}).WithError(err).Debug("live pricing unavailable, falling back")
		}
	}

	class := rec.Attributes[resource.AttrInstanceClass]
	if price, ok := e.table.Lookup(rec.Type, class, rec.Region); ok {
		out.MonthlyCost = price
		out.PricingSource = cost.SourceStaticTable
		out.Confidence = confidenceStaticTable
		metrics.RecordPricingTier(out.PricingSource)
		return true
	}
	return false
}

func (e *PricingEngine) priceStorage(rec resource.Record, out *cost.Record) {
	gb := attrFloat(rec, resource.AttrStorageGB)
	perGB, ok := e.table.StoragePerGB(rec.Type)
	if !ok {
		perGB = heuristicStoragePerGB
		out.PricingSource = cost.SourceHeuristicFallback
		out.Confidence = confidenceHeuristic
	} else {
		out.PricingSource = cost.SourceStaticTable
		out.Confidence = confidenceStaticTable
	}
	out.MonthlyCost = gb * perGB
	metrics.RecordPricingTier(out.PricingSource)
}

// addAttachedStorage prices storage that rides along with a compute or
// database resource, reported separately from the instance charge. Returns
// the tier that priced the storage, or "" when there was none to price.
func (e *PricingEngine) addAttachedStorage(rec resource.Record, out *cost.Record) string {
	gb := attrFloat(rec, resource.AttrStorageGB)
	if gb <= 0 {
		return ""
	}
	perGB, ok := e.table.StoragePerGB(resource.TypeBlockStorage)
	source := cost.SourceStaticTable
	if !ok {
		perGB = heuristicStoragePerGB
		source = cost.SourceHeuristicFallback
	}
	out.StorageCost = gb * perGB
	return source
}

func tierConfidence(source string) float64 {
	switch source {
	case cost.SourceLiveAPI:
		return confidenceLiveAPI
	case cost.SourceStaticTable:
		return confidenceStaticTable
	default:
		return confidenceHeuristic
	}
}

// Reconcile compares the calculated monthly total against billing actuals.
// Billing data covering fewer days than a month is extrapolated linearly.
func (e *PricingEngine) Reconcile(calculated float64, actuals []cost.DataPoint) cost.Reconciliation {
	rec := cost.Reconciliation{
		CalculatedCost: calculated,
		BillingDays:    len(actuals),
	}
	if len(actuals) == 0 {
		return rec
	}

	var total float64
	for _, p := range actuals {
		total += p.Cost
	}
	// scale the observed window to a 30-day month
	rec.ActualCost = total / float64(len(actuals)) * 30

	if rec.ActualCost > 0 {
		rec.Variance = math.Abs(calculated-rec.ActualCost) / rec.ActualCost
		rec.Accuracy = math.Max(0, 1-rec.Variance)
		rec.Validated = rec.Accuracy >= e.threshold
	}
	metrics.SetCostAccuracy(rec.Accuracy)
	return rec
}

// ForecastSpend extrapolates the daily spend series one month forward with
// an ordinary least-squares trend line
func ForecastSpend(actuals []cost.DataPoint, horizon int) *cost.Forecast {
	if len(actuals) < 7 {
		return nil
	}

	n := float64(len(actuals))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range actuals {
		x := float64(i)
		sumX += x
		sumY += p.Cost
		sumXY += x * p.Cost
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	var forecast float64
	for d := 0; d < horizon; d++ {
		v := intercept + slope*float64(len(actuals)+d)
		if v < 0 {
			v = 0
		}
		forecast += v
	}

	// residual spread drives the bounds and confidence
	var ss float64
	for i, p := range actuals {
		r := p.Cost - (intercept + slope*float64(i))
		ss += r * r
	}
	stddev := math.Sqrt(ss / n)
	spread := stddev * math.Sqrt(float64(horizon))

	mean := sumY / n
	confidence := 0.9
	if mean > 0 {
		confidence = math.Max(0.5, math.Min(0.95, 1-(stddev/mean)))
	}

	last := actuals[len(actuals)-1].Date
	return &cost.Forecast{
		ForecastedCost:  forecast,
		ConfidenceLevel: confidence,
		LowerBound:      math.Max(0, forecast-spread),
		UpperBound:      forecast + spread,
		Currency:        "USD",
		EndDate:         last.AddDate(0, 0, horizon),
	}
}

func attrFloat(rec resource.Record, key string) float64 {
	v, err := strconv.ParseFloat(rec.Attributes[key], 64)
	if err != nil {
		return 0
	}
	return v
}
