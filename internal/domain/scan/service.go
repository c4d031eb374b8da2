package scan

import (
	"context"

	"github.com/costscope/costscope/internal/domain/credential"
)

// Service is the inbound surface consumed by the API layer
type Service interface {
	// StartScan validates the config and launches a scan, returning its ID.
	// Credentials live only for the scan's duration and are never part of
	// the scan's persisted state.
	StartScan(ctx context.Context, cfg Config, tenantID string, creds credential.Bundle) (string, error)

	// GetScanStatus returns a snapshot of the scan's mutable state
	GetScanStatus(ctx context.Context, scanID string) (*ActiveScan, error)

	// GetScanReport returns the assembled report. Only valid once the scan
	// reached a terminal state with a report attached.
	GetScanReport(ctx context.Context, scanID string) (*Report, error)

	// CancelScan requests cooperative cancellation between stages
	CancelScan(ctx context.Context, scanID string) error
}

// ReportStore is the outbound storage collaborator. This subsystem owns no
// schema or transaction boundary of its own.
type ReportStore interface {
	SaveReport(ctx context.Context, report *Report) error
}
