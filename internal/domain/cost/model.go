package cost

import "time"

// Pricing source tiers, in resolution order
const (
	SourceLiveAPI           = "live_api"
	SourceStaticTable       = "static_table"
	SourceHeuristicFallback = "heuristic_fallback"
)

// Record is the resolved monthly cost for one resource
type Record struct {
	ResourceID    string  `json:"resource_id"`
	Provider      string  `json:"provider"`
	MonthlyCost   float64 `json:"monthly_cost"`
	StorageCost   float64 `json:"storage_cost,omitempty"` // separately priced storage/reservation charges
	Currency      string  `json:"currency"`
	PricingSource string  `json:"pricing_source"`
	Confidence    float64 `json:"confidence"` // heuristic tier is always low-confidence
	Notes         string  `json:"notes,omitempty"`
}

// Total returns the full monthly contribution of the resource
func (r Record) Total() float64 {
	return r.MonthlyCost + r.StorageCost
}

// Reconciliation compares calculated spend against billing ground truth
type Reconciliation struct {
	Provider       string  `json:"provider,omitempty"`
	CalculatedCost float64 `json:"calculated_cost"`
	ActualCost     float64 `json:"actual_cost"`
	Variance       float64 `json:"variance"` // |calculated-actual| / actual
	Accuracy       float64 `json:"accuracy"` // max(0, 1-variance)
	Validated      bool    `json:"validated"`
	BillingDays    int     `json:"billing_days,omitempty"`
}

// DataPoint is one day of actual spend from the billing backend
type DataPoint struct {
	Date time.Time `json:"date"`
	Cost float64   `json:"cost"`
}

// Forecast is a linear extrapolation of the daily spend series
type Forecast struct {
	Provider        string    `json:"provider,omitempty"`
	ForecastedCost  float64   `json:"forecasted_cost"`
	ConfidenceLevel float64   `json:"confidence_level"` // 0-1
	LowerBound      float64   `json:"lower_bound"`
	UpperBound      float64   `json:"upper_bound"`
	Currency        string    `json:"currency"`
	EndDate         time.Time `json:"end_date"`
}
