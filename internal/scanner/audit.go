package scanner

import (
	"fmt"
	"strings"
	"time"

	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/metrics"
)

// readOnlyVerbs are the operation-name prefixes known to be non-mutating.
// Anything outside this list is treated as mutating; unknown operations
// fail closed.
var readOnlyVerbs = []string{
	"List",
	"AggregatedList",
	"Describe",
	"Get",
	"Head",
	"Query",
	"Search",
	"Lookup",
	"Read",
	"Select",
}

// ClassifyOperation reports whether an operation name is read-only. The
// final path segment carries the verb for dotted operation names.
func ClassifyOperation(operation string) bool {
	verb := operation
	if i := strings.LastIndex(operation, "."); i >= 0 {
		verb = operation[i+1:]
	}
	for _, prefix := range readOnlyVerbs {
		if strings.HasPrefix(verb, prefix) || strings.HasPrefix(operation, prefix) {
			return true
		}
	}
	return false
}

// BuildAudit classifies every call a scan issued and produces the safety
// audit record. Any mutating call is an invariant violation; the caller
// must fail the scan when Passed is false.
func BuildAudit(scanID string, calls []scan.CallRecord) scan.SafetyAudit {
	audit := scan.SafetyAudit{
		ScanID:     scanID,
		VerifiedAt: time.Now().UTC(),
	}

	for _, call := range calls {
		if ClassifyOperation(call.Operation) {
			audit.ReadOnlyCalls++
			continue
		}
		audit.MutatingCalls++
		audit.Violations = append(audit.Violations,
			fmt.Sprintf("%s: mutating operation %s in %s at %s",
				call.Provider, call.Operation, call.Region, call.Timestamp.Format(time.RFC3339)))
		metrics.RecordSafetyViolation()
	}

	if audit.MutatingCalls > 0 {
		audit.RiskScore = 1.0
	}
	return audit
}
