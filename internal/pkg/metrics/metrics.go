package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scan lifecycle metrics
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "costscope",
			Subsystem: "scan",
			Name:      "total",
			Help:      "Total number of scans by final status",
		},
		[]string{"status"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "costscope",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "End-to-end scan duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "costscope",
			Subsystem: "scan",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual scan stages in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	activeScans = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "costscope",
			Subsystem: "scan",
			Name:      "active_count",
			Help:      "Number of scans currently running",
		},
	)

	// Discovery metrics
	discoveryTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "costscope",
			Subsystem: "discovery",
			Name:      "tasks_total",
			Help:      "Discovery tasks by provider, resource type and outcome",
		},
		[]string{"provider", "resource_type", "outcome"},
	)

	resourcesDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "costscope",
			Subsystem: "discovery",
			Name:      "resources_total",
			Help:      "Resources discovered by provider and resource type",
		},
		[]string{"provider", "resource_type"},
	)

	rateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "costscope",
			Subsystem: "discovery",
			Name:      "rate_limit_denials_total",
			Help:      "Rate limiter denials by provider",
		},
		[]string{"provider"},
	)

	// Costing metrics
	pricingTierHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "costscope",
			Subsystem: "cost",
			Name:      "pricing_tier_hits_total",
			Help:      "Price resolutions by pricing source tier",
		},
		[]string{"tier"},
	)

	costAccuracy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "costscope",
			Subsystem: "cost",
			Name:      "billing_accuracy",
			Help:      "Last billing reconciliation accuracy (0-1)",
		},
	)

	// Optimization metrics
	recommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "costscope",
			Subsystem: "optimization",
			Name:      "recommendations_total",
			Help:      "Recommendations generated by category",
		},
		[]string{"category"},
	)

	// Safety metrics
	safetyViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "costscope",
			Subsystem: "safety",
			Name:      "violations_total",
			Help:      "Read-only invariant violations detected",
		},
	)

	eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "costscope",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Progress events dropped because the queue was full",
		},
	)
)

// RecordScan records a finished scan with its final status
func RecordScan(status string, duration time.Duration) {
	scansTotal.WithLabelValues(status).Inc()
	scanDuration.Observe(duration.Seconds())
}

// RecordStage records the duration of one pipeline stage
func RecordStage(stage string, duration time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ScanStarted increments the active scan gauge
func ScanStarted() {
	activeScans.Inc()
}

// ScanFinished decrements the active scan gauge
func ScanFinished() {
	activeScans.Dec()
}

// RecordDiscoveryTask records one discovery task outcome
func RecordDiscoveryTask(provider, resourceType, outcome string) {
	discoveryTasksTotal.WithLabelValues(provider, resourceType, outcome).Inc()
}

// RecordResources records discovered resource counts
func RecordResources(provider, resourceType string, count int) {
	resourcesDiscovered.WithLabelValues(provider, resourceType).Add(float64(count))
}

// RecordRateLimitDenial records a denied Acquire for a provider
func RecordRateLimitDenial(provider string) {
	rateLimitDenials.WithLabelValues(provider).Inc()
}

// RecordPricingTier records which tier resolved a resource price
func RecordPricingTier(tier string) {
	pricingTierHits.WithLabelValues(tier).Inc()
}

// SetCostAccuracy records the latest reconciliation accuracy
func SetCostAccuracy(accuracy float64) {
	costAccuracy.Set(accuracy)
}

// RecordRecommendation records a generated recommendation
func RecordRecommendation(category string) {
	recommendationsTotal.WithLabelValues(category).Inc()
}

// RecordSafetyViolation records a mutating-call violation
func RecordSafetyViolation() {
	safetyViolationsTotal.Inc()
}

// RecordEventDropped records a dropped progress event
func RecordEventDropped() {
	eventsDropped.Inc()
}
