// Package scanner implements the scan pipeline: discovery fan-out, metrics
// enrichment, tiered costing, optimization analysis, the read-only safety
// audit and report assembly, coordinated by the Orchestrator.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/costscope/costscope/internal/config"
	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/credential"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/insights"
	"github.com/costscope/costscope/internal/pkg/logger"
	"github.com/costscope/costscope/internal/pkg/metrics"
	"github.com/costscope/costscope/internal/pkg/paginate"
	"github.com/costscope/costscope/internal/pkg/ratelimit"
	"github.com/costscope/costscope/internal/providers"
)

// scanState is the orchestrator-owned live record of one scan
type scanState struct {
	snapshot scan.ActiveScan
	cancel   context.CancelFunc
	report   *scan.Report
}

// Orchestrator owns the scan registry and runs the pipeline. It implements
// scan.Service.
type Orchestrator struct {
	cfg      config.ScannerConfig
	registry providers.Registry
	store    scan.ReportStore
	insight  insights.Generator
	events   *EventQueue
	log      *logger.Logger

	discoverer *Discoverer
	collector  *Collector
	table      *StaticPriceTable
	optimizer  *Optimizer

	mu    sync.RWMutex
	scans map[string]*scanState

	stopJanitor context.CancelFunc
	janitorDone chan struct{}
}

// New builds the orchestrator and starts its retention janitor
func New(cfg config.ScannerConfig, registry providers.Registry, store scan.ReportStore, insight insights.Generator, events *EventQueue, log *logger.Logger) (*Orchestrator, error) {
	table, err := LoadPriceTable(cfg.StaticPriceTablePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load price table: %w", err)
	}

	budgets := make(map[string]ratelimit.Budget, len(cfg.RateLimitOverrides))
	for key, perHour := range cfg.RateLimitOverrides {
		budgets[key] = ratelimit.Budget{RequestsPerHour: perHour, Burst: cfg.RateLimitBurst}
	}
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Budget{
		RequestsPerHour: cfg.RateLimitDefaultPerHour,
		Burst:           cfg.RateLimitBurst,
	}, budgets)

	retry := paginate.RetryPolicy{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	}

	o := &Orchestrator{
		cfg:        cfg,
		registry:   registry,
		store:      store,
		insight:    insight,
		events:     events,
		log:        log,
		discoverer: NewDiscoverer(limiter, retry, cfg.DiscoveryConcurrency, log),
		collector:  NewCollector(cfg.MetricsWorkers, cfg.UtilizationWindowDays, cfg.MetricBucket, log),
		table:      table,
		optimizer: NewOptimizer(OptimizerConfig{
			RightsizingCPUP99Threshold: cfg.RightsizingCPUP99Threshold,
			RightsizingBaseConfidence:  cfg.RightsizingBaseConfidence,
			AnomalyZScore:              cfg.AnomalyZScore,
			ConsolidationMinGroup:      cfg.ConsolidationMinGroup,
			SteadyStateCPUFloor:        cfg.SteadyStateCPUFloor,
		}),
		scans:       make(map[string]*scanState),
		janitorDone: make(chan struct{}),
	}

	janitorCtx, stop := context.WithCancel(context.Background())
	o.stopJanitor = stop
	go o.janitor(janitorCtx)
	return o, nil
}

// Close stops the retention janitor. Running scans keep running.
func (o *Orchestrator) Close() {
	o.stopJanitor()
	<-o.janitorDone
}

// StartScan validates the config and launches the pipeline on its own
// goroutine. The credential bundle is captured only by that goroutine and
// becomes unreachable when the scan ends.
func (o *Orchestrator) StartScan(ctx context.Context, cfg scan.Config, tenantID string, creds credential.Bundle) (string, error) {
	if len(cfg.Scopes) == 0 {
		return "", fmt.Errorf("scan config needs at least one provider scope")
	}
	for _, scope := range cfg.Scopes {
		if _, ok := o.registry[scope.Provider]; !ok {
			return "", fmt.Errorf("provider %q is not enabled", scope.Provider)
		}
	}

	scanID := uuid.NewString()
	scanCtx, cancel := context.WithCancel(context.Background())

	state := &scanState{
		snapshot: scan.ActiveScan{
			ID:        scanID,
			TenantID:  tenantID,
			Config:    cfg,
			Status:    scan.StatusPending,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}

	o.mu.Lock()
	o.scans[scanID] = state
	o.mu.Unlock()

	go o.run(scanCtx, scanID, cfg, tenantID, creds)

	o.log.WithFields(map[string]interface{}{
		"scan_id": scanID,
		"tenant":  tenantID,
		"scopes":  len(cfg.Scopes),
	}).Info("scan started")
	return scanID, nil
}

// GetScanStatus returns a snapshot of the scan's state
func (o *Orchestrator) GetScanStatus(ctx context.Context, scanID string) (*scan.ActiveScan, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.scans[scanID]
	if !ok {
		return nil, fmt.Errorf("scan %s not found", scanID)
	}
	snap := state.snapshot
	return &snap, nil
}

// GetScanReport returns the assembled report once the scan is terminal. A
// failed scan that got far enough to assemble a report still serves it.
func (o *Orchestrator) GetScanReport(ctx context.Context, scanID string) (*scan.Report, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.scans[scanID]
	if !ok {
		return nil, fmt.Errorf("scan %s not found", scanID)
	}
	if state.snapshot.Status != scan.StatusCompleted && state.snapshot.Status != scan.StatusFailed {
		return nil, fmt.Errorf("scan %s has not finished", scanID)
	}
	if state.report == nil {
		return nil, fmt.Errorf("scan %s produced no report", scanID)
	}
	return state.report, nil
}

// CancelScan requests cooperative cancellation. The pipeline stops at the
// next stage boundary; partial results are discarded.
func (o *Orchestrator) CancelScan(ctx context.Context, scanID string) error {
	o.mu.RLock()
	state, ok := o.scans[scanID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scan %s not found", scanID)
	}
	switch state.snapshot.Status {
	case scan.StatusCompleted, scan.StatusFailed:
		return fmt.Errorf("scan %s already finished", scanID)
	}
	state.cancel()
	return nil
}

// run executes the pipeline stages in order
func (o *Orchestrator) run(ctx context.Context, scanID string, cfg scan.Config, tenantID string, creds credential.Bundle) {
	metrics.ScanStarted()
	start := time.Now()
	defer metrics.ScanFinished()

	o.update(scanID, func(s *scan.ActiveScan) {
		s.Status = scan.StatusRunning
	})

	report, err := o.pipeline(ctx, scanID, cfg, tenantID, creds)
	switch {
	case err != nil:
		reason := err.Error()
		if ctx.Err() != nil {
			reason = scan.FailureReasonCancelled
		}
		o.finish(scanID, scan.StatusFailed, reason, report)
	case !report.Audit.Passed():
		o.finish(scanID, scan.StatusFailed, "read-only invariant violated", report)
	default:
		o.finish(scanID, scan.StatusCompleted, "", report)
	}
	metrics.RecordScan(string(o.status(scanID)), time.Since(start))
}

// pipeline runs every stage and assembles the report. A non-nil report may
// accompany a non-nil error when the scan failed after assembly.
func (o *Orchestrator) pipeline(ctx context.Context, scanID string, cfg scan.Config, tenantID string, creds credential.Bundle) (*scan.Report, error) {
	var allCalls []scan.CallRecord

	// capability construction; a provider that fails auth degrades
	// coverage instead of failing the scan
	caps := make(map[string]providers.Capability)
	var capFailures []scan.TaskFailure
	for _, scope := range cfg.Scopes {
		factory := o.registry[scope.Provider]
		cap, err := factory.New(ctx, creds)
		if err != nil {
			o.log.WithFields(map[string]interface{}{
				"scan_id":  scanID,
				"provider": scope.Provider,
			}).WithError(err).Warn("provider setup failed")
			capFailures = append(capFailures, scan.TaskFailure{
				Provider: scope.Provider,
				Error:    err.Error(),
			})
			continue
		}
		caps[scope.Provider] = cap
	}

	// discovery
	o.stage(scanID, scan.StepDiscovery, 5)
	stageStart := time.Now()
	disc, err := o.discoverer.Run(ctx, cfg.Scopes, caps, func(done, total int) {
		o.progress(scanID, scan.StepDiscovery, 5+done*30/total)
	})
	metrics.RecordStage(string(scan.StepDiscovery), time.Since(stageStart))
	allCalls = append(allCalls, disc.Calls...)
	if err != nil {
		return nil, err
	}
	disc.Failures = append(disc.Failures, capFailures...)
	disc.Tasks += len(capFailures)

	o.update(scanID, func(s *scan.ActiveScan) {
		s.ResourceCount = len(disc.Resources)
		s.Coverage = disc.Coverage()
	})

	// metrics enrichment
	o.stage(scanID, scan.StepMetrics, 40)
	stageStart = time.Now()
	allCalls = append(allCalls, o.collector.Run(ctx, disc.Resources, caps)...)
	metrics.RecordStage(string(scan.StepMetrics), time.Since(stageStart))
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// costing
	o.stage(scanID, scan.StepCosting, 60)
	stageStart = time.Now()
	pricing := NewPricingEngine(o.table, liveClients(caps), o.cfg.CostAccuracyThreshold, o.log)
	costs := pricing.Price(ctx, disc.Resources)
	billing, billingCalls := o.fetchBilling(ctx, caps)
	allCalls = append(allCalls, pricing.Calls()...)
	allCalls = append(allCalls, billingCalls...)

	var calculated float64
	for _, c := range costs {
		calculated += c.Total()
	}
	reconciliation := pricing.Reconcile(calculated, billing)
	metrics.RecordStage(string(scan.StepCosting), time.Since(stageStart))
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// optimization
	o.stage(scanID, scan.StepOptimization, 75)
	stageStart = time.Now()
	recs := o.optimizer.Run(scanID, cfg, disc.Resources, costs, billing)
	metrics.RecordStage(string(scan.StepOptimization), time.Since(stageStart))
	o.update(scanID, func(s *scan.ActiveScan) {
		s.RecommendationCount = len(recs)
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// safety audit over every recorded call
	o.stage(scanID, scan.StepAudit, 85)
	audit := BuildAudit(scanID, allCalls)

	// report assembly; runs even when the audit failed so the violation
	// is preserved in a stored report
	o.stage(scanID, scan.StepReport, 90)
	report := assembleReport(reportInput{
		scanID:          scanID,
		tenantID:        tenantID,
		resources:       disc.Resources,
		costs:           costs,
		recommendations: recs,
		audit:           audit,
		reconciliation:  reconciliation,
		billing:         billing,
		coverage:        disc.Coverage(),
		failures:        disc.Failures,
	}, o.log)

	if audit.Passed() {
		attachInsight(ctx, o.insight, report, o.log)
	}

	if o.store != nil {
		if err := o.store.SaveReport(context.WithoutCancel(ctx), report); err != nil {
			o.log.WithFields(map[string]interface{}{"scan_id": scanID}).
				WithError(err).Error("failed to persist report")
		}
	}
	return report, nil
}

// fetchBilling pulls daily actuals from every provider with a billing
// capability and merges them into one series
func (o *Orchestrator) fetchBilling(ctx context.Context, caps map[string]providers.Capability) ([]cost.DataPoint, []scan.CallRecord) {
	var calls []scan.CallRecord
	byDate := make(map[time.Time]float64)

	for provider, cap := range caps {
		if cap.Billing == nil {
			continue
		}
		points, billingCalls, err := cap.Billing.DailyActualCosts(ctx, o.cfg.UtilizationWindowDays)
		calls = append(calls, billingCalls...)
		if err != nil {
			o.log.WithFields(map[string]interface{}{"provider": provider}).
				WithError(err).Warn("billing fetch failed, reconciliation degraded")
			continue
		}
		for _, p := range points {
			byDate[p.Date.Truncate(24*time.Hour)] += p.Cost
		}
	}

	if len(byDate) == 0 {
		return nil, calls
	}
	merged := make([]cost.DataPoint, 0, len(byDate))
	for date, total := range byDate {
		merged = append(merged, cost.DataPoint{Date: date, Cost: total})
	}
	sortDataPoints(merged)
	return merged, calls
}

func liveClients(caps map[string]providers.Capability) map[string]providers.PricingClient {
	out := make(map[string]providers.PricingClient, len(caps))
	for provider, cap := range caps {
		out[provider] = cap.Pricing
	}
	return out
}

func sortDataPoints(points []cost.DataPoint) {
	for i := 1; i < len(points); i++ {
		for j := i; j > 0 && points[j].Date.Before(points[j-1].Date); j-- {
			points[j], points[j-1] = points[j-1], points[j]
		}
	}
}

// update mutates the live snapshot under the registry lock
func (o *Orchestrator) update(scanID string, fn func(*scan.ActiveScan)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.scans[scanID]; ok {
		fn(&state.snapshot)
	}
}

func (o *Orchestrator) status(scanID string) scan.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if state, ok := o.scans[scanID]; ok {
		return state.snapshot.Status
	}
	return scan.StatusFailed
}

// stage advances the current step and publishes a progress event
func (o *Orchestrator) stage(scanID string, step scan.Step, progress int) {
	o.update(scanID, func(s *scan.ActiveScan) {
		s.CurrentStep = step
		s.Progress = progress
	})
	o.publish(scanID, step, progress, "")
}

func (o *Orchestrator) progress(scanID string, step scan.Step, progress int) {
	o.update(scanID, func(s *scan.ActiveScan) {
		s.Progress = progress
	})
	o.publish(scanID, step, progress, "")
}

func (o *Orchestrator) finish(scanID string, status scan.Status, reason string, report *scan.Report) {
	o.mu.Lock()
	if state, ok := o.scans[scanID]; ok {
		state.snapshot.Status = status
		state.snapshot.Error = reason
		state.snapshot.Progress = 100
		state.snapshot.CompletedAt = time.Now().UTC()
		state.report = report
		state.cancel()
	}
	o.mu.Unlock()

	o.publish(scanID, scan.StepReport, 100, reason)
	o.log.WithFields(map[string]interface{}{
		"scan_id": scanID,
		"status":  status,
		"reason":  reason,
	}).Info("scan finished")
}

func (o *Orchestrator) publish(scanID string, step scan.Step, progress int, message string) {
	if o.events == nil {
		return
	}
	o.events.Publish(Event{
		ScanID:    scanID,
		Step:      step,
		Progress:  progress,
		Message:   message,
		Status:    o.status(scanID),
		Timestamp: time.Now().UTC(),
	})
}

// janitor evicts terminal scans past the retention window
func (o *Orchestrator) janitor(ctx context.Context) {
	defer close(o.janitorDone)
	interval := o.cfg.ScanRetention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.evict(time.Now().UTC())
		}
	}
}

func (o *Orchestrator) evict(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, state := range o.scans {
		switch state.snapshot.Status {
		case scan.StatusCompleted, scan.StatusFailed:
			if now.Sub(state.snapshot.CompletedAt) > o.cfg.ScanRetention {
				delete(o.scans, id)
			}
		}
	}
}

var _ scan.Service = (*Orchestrator)(nil)
