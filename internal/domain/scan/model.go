package scan

import (
	"time"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/recommendation"
	"github.com/costscope/costscope/internal/domain/resource"
)

// Status is the scan lifecycle state
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step is the pipeline stage currently executing, for progress reporting
// only. A failed scan is never resumed in place.
type Step string

const (
	StepDiscovery    Step = "discovery"
	StepMetrics      Step = "metrics"
	StepCosting      Step = "costing"
	StepOptimization Step = "optimization"
	StepAudit        Step = "audit"
	StepReport       Step = "report"
)

// FailureReasonCancelled marks a scan failed by cooperative cancellation
const FailureReasonCancelled = "cancelled"

// ProviderScope selects the accounts and regions to scan for one provider
type ProviderScope struct {
	Provider  string   `json:"provider"`
	AccountID string   `json:"account_id,omitempty"`
	Regions   []string `json:"regions,omitempty"` // empty means all reachable regions
}

// Config is the immutable scan input, created by the caller
type Config struct {
	Scopes     []ProviderScope `json:"scopes"`
	Categories []string        `json:"categories,omitempty"` // enabled optimization categories; empty means all
}

// CategoryEnabled reports whether a recommendation category is in scope
func (c Config) CategoryEnabled(category string) bool {
	if len(c.Categories) == 0 {
		return true
	}
	for _, cat := range c.Categories {
		if cat == category {
			return true
		}
	}
	return false
}

// ActiveScan is a point-in-time snapshot of a scan's mutable state. The
// orchestrator owns the live copy; callers only ever see snapshots.
type ActiveScan struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Config      Config    `json:"config"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"` // 0-100
	CurrentStep Step      `json:"current_step,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	ResourceCount       int     `json:"resource_count"`
	RecommendationCount int     `json:"recommendation_count"`
	Coverage            float64 `json:"coverage"` // fraction of discovery tasks that succeeded
}

// CallRecord is one outbound provider API call, classified for the safety
// audit
type CallRecord struct {
	Provider  string    `json:"provider"`
	Operation string    `json:"operation"`
	Region    string    `json:"region,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskFailure records a failed discovery task with enough context to judge
// coverage degradation
type TaskFailure struct {
	Provider     string        `json:"provider"`
	ResourceType resource.Type `json:"resource_type"`
	Region       string        `json:"region"`
	Error        string        `json:"error"`
}

// SafetyAudit proves the read-only invariant held for a scan. Created once
// at scan completion; immutable.
type SafetyAudit struct {
	ScanID        string    `json:"scan_id"`
	ReadOnlyCalls int       `json:"read_only_calls"`
	MutatingCalls int       `json:"mutating_calls"`
	Violations    []string  `json:"violations,omitempty"`
	RiskScore     float64   `json:"risk_score"` // 0 clean, 1 invariant broken
	VerifiedAt    time.Time `json:"verified_at"`
}

// Passed reports whether the read-only invariant held
func (a SafetyAudit) Passed() bool {
	return a.MutatingCalls == 0 && len(a.Violations) == 0
}

// Report is the serializable scan output handed to the storage collaborator
type Report struct {
	ScanID      string    `json:"scan_id"`
	TenantID    string    `json:"tenant_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Resources       []resource.Record               `json:"resources"`
	Costs           []cost.Record                   `json:"costs"`
	Recommendations []recommendation.Recommendation `json:"recommendations"`
	Audit           SafetyAudit                     `json:"safety_audit"`
	Reconciliation  cost.Reconciliation             `json:"reconciliation"`
	Forecast        *cost.Forecast                  `json:"forecast,omitempty"`

	Coverage     float64       `json:"coverage"`
	TaskFailures []TaskFailure `json:"task_failures,omitempty"`

	TotalMonthlyCost      float64 `json:"total_monthly_cost"`
	TotalPotentialSavings float64 `json:"total_potential_savings"`
	Currency              string  `json:"currency"`
	Insight               string  `json:"insight,omitempty"`
}
