// Package sqlite persists scan reports to a local SQLite database. The
// report is stored as one JSON document per scan; queries that need
// structure read the indexed summary columns.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/costscope/costscope/internal/domain/scan"
)

const schema = `
CREATE TABLE IF NOT EXISTS scan_reports (
	scan_id      TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	generated_at TIMESTAMP NOT NULL,
	status       TEXT NOT NULL,
	total_cost   REAL NOT NULL,
	savings      REAL NOT NULL,
	coverage     REAL NOT NULL,
	audit_passed INTEGER NOT NULL,
	document     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scan_reports_tenant ON scan_reports(tenant_id, generated_at);
`

// ReportStore implements scan.ReportStore on SQLite
type ReportStore struct {
	db *sql.DB
}

// NewReportStore opens the database and ensures the schema exists
func NewReportStore(path string) (*ReportStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report database: %w", err)
	}
	// modernc sqlite does not support concurrent writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize report schema: %w", err)
	}
	return &ReportStore{db: db}, nil
}

// Close releases the database handle
func (s *ReportStore) Close() error {
	return s.db.Close()
}

// SaveReport upserts the report document keyed by scan ID
func (s *ReportStore) SaveReport(ctx context.Context, report *scan.Report) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	status := scan.StatusCompleted
	if !report.Audit.Passed() {
		status = scan.StatusFailed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_reports
			(scan_id, tenant_id, generated_at, status, total_cost, savings, coverage, audit_passed, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id) DO UPDATE SET
			generated_at = excluded.generated_at,
			status       = excluded.status,
			total_cost   = excluded.total_cost,
			savings      = excluded.savings,
			coverage     = excluded.coverage,
			audit_passed = excluded.audit_passed,
			document     = excluded.document`,
		report.ScanID,
		report.TenantID,
		report.GeneratedAt,
		string(status),
		report.TotalMonthlyCost,
		report.TotalPotentialSavings,
		report.Coverage,
		boolToInt(report.Audit.Passed()),
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport loads one report by scan ID
func (s *ReportStore) GetReport(ctx context.Context, scanID string) (*scan.Report, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM scan_reports WHERE scan_id = ?`, scanID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report %s not found", scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}

	var report scan.Report
	if err := json.Unmarshal([]byte(doc), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// ReportSummary is one row of the tenant report listing
type ReportSummary struct {
	ScanID      string    `json:"scan_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Status      string    `json:"status"`
	TotalCost   float64   `json:"total_cost"`
	Savings     float64   `json:"savings"`
	Coverage    float64   `json:"coverage"`
	AuditPassed bool      `json:"audit_passed"`
}

// ListReports returns recent report summaries for a tenant, newest first
func (s *ReportStore) ListReports(ctx context.Context, tenantID string, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, generated_at, status, total_cost, savings, coverage, audit_passed
		FROM scan_reports
		WHERE tenant_id = ?
		ORDER BY generated_at DESC
		LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportSummary
	for rows.Next() {
		var (
			sum    ReportSummary
			passed int
		)
		if err := rows.Scan(&sum.ScanID, &sum.GeneratedAt, &sum.Status,
			&sum.TotalCost, &sum.Savings, &sum.Coverage, &passed); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		sum.AuditPassed = passed == 1
		out = append(out, sum)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ scan.ReportStore = (*ReportStore)(nil)
