package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Logging  LoggingConfig
	Scanner  ScannerConfig
	Provider ProviderConfig
	Insights InsightsConfig
	Report   ReportConfig
	Schedule ScheduleConfig
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// ScannerConfig contains pipeline tuning knobs. Nothing in the detector
// logic is hard-coded; every threshold lives here.
type ScannerConfig struct {
	// Retry/backoff for paginated provider calls
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// Rolling-window budgets, requests per hour per provider:region key
	RateLimitDefaultPerHour int
	RateLimitBurst          int
	RateLimitOverrides      map[string]int // e.g. "aws:us-east-1" -> 1800

	// Discovery fan-out
	DiscoveryConcurrency int

	// Metrics collection
	UtilizationWindowDays int
	MetricBucket          time.Duration
	MetricsWorkers        int

	// Costing
	StaticPriceTablePath  string
	CostAccuracyThreshold float64 // reconciliation validated at or above this

	// Optimization thresholds. The confidence figures are heuristic
	// placeholders pending historical validation data.
	RightsizingCPUP99Threshold float64 // percent
	RightsizingBaseConfidence  float64
	AnomalyZScore              float64
	ConsolidationMinGroup      int
	SteadyStateCPUFloor        float64 // percent

	// Progress event queue
	EventQueueCapacity int
	EventWorkers       int

	// Completed/failed scans are evicted from the registry after this
	ScanRetention time.Duration
}

// ProviderConfig lists the providers enabled at startup. Credentials are
// supplied per-scan by the auth layer; the values here only say which
// capability clients to construct.
type ProviderConfig struct {
	Enabled []string // aws, azure, gcp
}

// InsightsConfig configures the optional AI narrative generator
type InsightsConfig struct {
	OpenAIAPIKey string
	Model        string
}

// ReportConfig configures the report sink
type ReportConfig struct {
	SQLitePath string
}

// ScheduleConfig configures recurring scans
type ScheduleConfig struct {
	Enabled  bool
	CronSpec string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Scanner: ScannerConfig{
			RetryMaxAttempts:  getEnvAsInt("SCAN_RETRY_MAX_ATTEMPTS", 3),
			RetryInitialDelay: getEnvAsDuration("SCAN_RETRY_INITIAL_DELAY", 500*time.Millisecond),
			RetryMaxDelay:     getEnvAsDuration("SCAN_RETRY_MAX_DELAY", 30*time.Second),

			RateLimitDefaultPerHour: getEnvAsInt("SCAN_RATE_LIMIT_PER_HOUR", 3600),
			RateLimitBurst:          getEnvAsInt("SCAN_RATE_LIMIT_BURST", 10),
			RateLimitOverrides:      getEnvAsIntMap("SCAN_RATE_LIMIT_OVERRIDES"),

			DiscoveryConcurrency: getEnvAsInt("SCAN_DISCOVERY_CONCURRENCY", 8),

			UtilizationWindowDays: getEnvAsInt("SCAN_UTILIZATION_WINDOW_DAYS", 30),
			MetricBucket:          getEnvAsDuration("SCAN_METRIC_BUCKET", time.Hour),
			MetricsWorkers:        getEnvAsInt("SCAN_METRICS_WORKERS", 4),

			StaticPriceTablePath:  getEnv("SCAN_PRICE_TABLE_PATH", ""),
			CostAccuracyThreshold: getEnvAsFloat("SCAN_COST_ACCURACY_THRESHOLD", 0.95),

			RightsizingCPUP99Threshold: getEnvAsFloat("SCAN_RIGHTSIZING_CPU_P99", 20.0),
			RightsizingBaseConfidence:  getEnvAsFloat("SCAN_RIGHTSIZING_BASE_CONFIDENCE", 0.85),
			AnomalyZScore:              getEnvAsFloat("SCAN_ANOMALY_ZSCORE", 2.0),
			ConsolidationMinGroup:      getEnvAsInt("SCAN_CONSOLIDATION_MIN_GROUP", 3),
			SteadyStateCPUFloor:        getEnvAsFloat("SCAN_STEADY_STATE_CPU_FLOOR", 40.0),

			EventQueueCapacity: getEnvAsInt("SCAN_EVENT_QUEUE_CAPACITY", 10000),
			EventWorkers:       getEnvAsInt("SCAN_EVENT_WORKERS", 2),

			ScanRetention: getEnvAsDuration("SCAN_RETENTION", time.Hour),
		},
		Provider: ProviderConfig{
			Enabled: getEnvAsSlice("PROVIDERS_ENABLED", []string{"aws"}),
		},
		Insights: InsightsConfig{
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			Model:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Report: ReportConfig{
			SQLitePath: getEnv("REPORT_DB_PATH", "./reports.db"),
		},
		Schedule: ScheduleConfig{
			Enabled:  getEnvAsBool("SCHEDULE_ENABLED", false),
			CronSpec: getEnv("SCHEDULE_CRON", "0 2 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Scanner.RetryMaxAttempts < 1 {
		return fmt.Errorf("SCAN_RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Scanner.RateLimitDefaultPerHour < 1 {
		return fmt.Errorf("SCAN_RATE_LIMIT_PER_HOUR must be positive")
	}
	if c.Scanner.CostAccuracyThreshold < 0 || c.Scanner.CostAccuracyThreshold > 1 {
		return fmt.Errorf("SCAN_COST_ACCURACY_THRESHOLD must be in [0,1]")
	}
	if c.Scanner.UtilizationWindowDays < 1 {
		return fmt.Errorf("SCAN_UTILIZATION_WINDOW_DAYS must be positive")
	}
	if c.Scanner.EventQueueCapacity < 1 {
		return fmt.Errorf("SCAN_EVENT_QUEUE_CAPACITY must be positive")
	}
	for _, p := range c.Provider.Enabled {
		switch p {
		case "aws", "azure", "gcp":
		default:
			return fmt.Errorf("unsupported provider: %s", p)
		}
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAsIntMap parses "key1=1800,key2=600" into a map
func getEnvAsIntMap(key string) map[string]int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	out := make(map[string]int)
	for _, pair := range strings.Split(valueStr, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 {
			continue
		}
		if n, err := strconv.Atoi(kv[1]); err == nil {
			out[kv[0]] = n
		}
	}
	return out
}
