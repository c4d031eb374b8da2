package scanner

import (
	"testing"
	"time"

	"github.com/costscope/costscope/internal/domain/scan"
)

func TestClassifyOperation(t *testing.T) {
	tests := []struct {
		operation string
		readOnly  bool
	}{
		{"DescribeInstances", true},
		{"ListBuckets", true},
		{"GetMetricStatistics", true},
		{"GetCostAndUsage", true},
		{"BigQuery.Query", true},
		{"Instances.AggregatedList", true},
		{"Buckets.List", true},
		{"VirtualMachines.ListByLocation", true},
		{"HeadObject", true},
		{"TerminateInstances", false},
		{"DeleteVolume", false},
		{"CreateBucket", false},
		{"ModifyInstanceAttribute", false},
		{"Instances.Delete", false},
		{"PutObject", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			if got := ClassifyOperation(tt.operation); got != tt.readOnly {
				t.Errorf("ClassifyOperation(%q) = %v, want %v", tt.operation, got, tt.readOnly)
			}
		})
	}
}

func TestBuildAuditClean(t *testing.T) {
	calls := []scan.CallRecord{
		{Provider: "aws", Operation: "DescribeInstances", Region: "us-east-1", Timestamp: time.Now()},
		{Provider: "aws", Operation: "ListBuckets", Timestamp: time.Now()},
		{Provider: "gcp", Operation: "Instances.AggregatedList", Timestamp: time.Now()},
	}

	audit := BuildAudit("scan-1", calls)
	if !audit.Passed() {
		t.Fatalf("Passed() = false for read-only calls: %+v", audit)
	}
	if audit.ReadOnlyCalls != 3 || audit.MutatingCalls != 0 {
		t.Errorf("counts = (%d, %d), want (3, 0)", audit.ReadOnlyCalls, audit.MutatingCalls)
	}
	if audit.RiskScore != 0 {
		t.Errorf("RiskScore = %.1f, want 0", audit.RiskScore)
	}
}

func TestBuildAuditViolation(t *testing.T) {
	calls := []scan.CallRecord{
		{Provider: "aws", Operation: "DescribeInstances", Region: "us-east-1", Timestamp: time.Now()},
		{Provider: "aws", Operation: "TerminateInstances", Region: "us-east-1", Timestamp: time.Now()},
	}

	audit := BuildAudit("scan-1", calls)
	if audit.Passed() {
		t.Fatal("Passed() = true despite a mutating call")
	}
	if audit.MutatingCalls != 1 {
		t.Errorf("MutatingCalls = %d, want 1", audit.MutatingCalls)
	}
	if len(audit.Violations) != 1 {
		t.Fatalf("Violations = %v, want exactly one", audit.Violations)
	}
	if audit.RiskScore != 1.0 {
		t.Errorf("RiskScore = %.1f, want 1.0", audit.RiskScore)
	}
}
