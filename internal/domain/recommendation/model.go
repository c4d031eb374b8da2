package recommendation

import "time"

// Recommendation represents a cost optimization opportunity. Generated once
// per scan and never mutated; a re-scan produces a fresh set.
type Recommendation struct {
	ID               string    `json:"id"`
	ScanID           string    `json:"scan_id"`
	Category         string    `json:"category"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Provider         string    `json:"provider"`
	ResourceID       string    `json:"resource_id,omitempty"`
	Resources        []string  `json:"resources,omitempty"`
	Confidence       float64   `json:"confidence"`        // 0-1
	PotentialSavings float64   `json:"potential_savings"` // monthly, >= 0
	Currency         string    `json:"currency"`
	Effort           string    `json:"effort"`
	RiskLevel        string    `json:"risk_level"`
	Automated        bool      `json:"automated"` // safe to auto-apply without review
	Detector         string    `json:"detector"`  // which detector produced it
	CreatedAt        time.Time `json:"created_at"`
}

// Categories
const (
	CategoryRightsizing  = "rightsizing"
	CategoryIdleRemoval  = "idle_removal"
	CategoryReservation  = "reservation"
	CategoryArchitecture = "architecture"
)

// Effort levels
const (
	EffortLow    = "low"
	EffortMedium = "medium"
	EffortHigh   = "high"
)

// Risk levels
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Detector names
const (
	DetectorUnattachedStorage = "rule_unattached_storage"
	DetectorStoppedBilled     = "rule_stopped_billed"
	DetectorRightsizing       = "rule_rightsizing"
	DetectorReservation       = "rule_reservation"
	DetectorCostAnomaly       = "stat_cost_anomaly"
	DetectorConsolidation     = "stat_consolidation"
)

// AutomationConfidenceFloor is the confidence a recommendation must exceed,
// combined with low risk, to be flagged safe for automated application.
const AutomationConfidenceFloor = 0.85

// EligibleForAutomation reports whether the recommendation may be applied
// without human review
func (r Recommendation) EligibleForAutomation() bool {
	return r.Confidence > AutomationConfidenceFloor && r.RiskLevel == RiskLow
}
