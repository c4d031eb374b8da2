package resource

import "time"

// Type enumerates the resource kinds the discovery clients understand
type Type string

const (
	TypeCompute        Type = "compute_instance"
	TypeDatabase       Type = "managed_database"
	TypeObjectStore    Type = "object_store"
	TypeBlockStorage   Type = "block_storage"
	TypeCache          Type = "cache_cluster"
	TypeLoadBalancer   Type = "load_balancer"
	TypeContainer      Type = "container_service"
)

// Resource states normalized across providers
const (
	StateRunning    = "running"
	StateStopped    = "stopped"
	StateAvailable  = "available"
	StateUnattached = "unattached"
	StateUnknown    = "unknown"
)

// Record is a normalized representation of a resource discovered from any
// provider. Immutable once created within a scan.
type Record struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         Type              `json:"type"`
	Provider     string            `json:"provider"`
	Region       string            `json:"region"`
	State        string            `json:"state"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	DiscoveredAt time.Time         `json:"discovered_at"`
	Utilization  UtilizationSample `json:"utilization"`
}

// Attribute keys written by discovery clients and read by the cost and
// optimization engines.
const (
	AttrInstanceClass = "instance_class"
	AttrStorageGB     = "storage_gb"
	AttrMultiAZ       = "multi_az"
	AttrAttached      = "attached"
	AttrVolumeType    = "volume_type"
	AttrEngine        = "engine"
)

// UtilizationSample holds percentile utilization over the trailing window.
// HasData false means the metrics backend had nothing for this resource;
// downstream stages must not read that as zero utilization.
type UtilizationSample struct {
	HasData      bool      `json:"has_data"`
	WindowStart  time.Time `json:"window_start,omitempty"`
	WindowEnd    time.Time `json:"window_end,omitempty"`
	SampleCount  int       `json:"sample_count,omitempty"`
	Completeness float64   `json:"completeness,omitempty"` // fraction of expected buckets present

	CPUMean float64 `json:"cpu_mean,omitempty"`
	CPUP50  float64 `json:"cpu_p50,omitempty"`
	CPUP95  float64 `json:"cpu_p95,omitempty"`
	CPUP99  float64 `json:"cpu_p99,omitempty"`

	MemoryMean float64 `json:"memory_mean,omitempty"`
	MemoryP50  float64 `json:"memory_p50,omitempty"`
	MemoryP95  float64 `json:"memory_p95,omitempty"`
	MemoryP99  float64 `json:"memory_p99,omitempty"`

	ThroughputMean float64 `json:"throughput_mean,omitempty"`
	ThroughputP95  float64 `json:"throughput_p95,omitempty"`
	ThroughputP99  float64 `json:"throughput_p99,omitempty"`
}

// NoData returns an explicitly empty sample
func NoData() UtilizationSample {
	return UtilizationSample{HasData: false}
}

// IsIdleCandidate reports whether the resource is eligible for rightsizing
// analysis. Resources without metrics data never are.
func (s UtilizationSample) IsIdleCandidate(cpuThreshold float64) bool {
	return s.HasData && s.CPUP99 < cpuThreshold
}
