package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/costscope/costscope/internal/domain/scan"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		providerList []string
		regions      []string
		categories   []string
		tenantID     string
		jsonOutput   bool
		metricsAddr  string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan and wait for the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, events, err := a.newOrchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()
			defer events.Close()

			if metricsAddr != "" {
				go serveMetrics(metricsAddr, a)
			}

			if len(providerList) == 0 {
				providerList = a.cfg.Provider.Enabled
			}
			scopes := make([]scan.ProviderScope, 0, len(providerList))
			for _, p := range providerList {
				scopes = append(scopes, scan.ProviderScope{Provider: p, Regions: regions})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scanID, err := orch.StartScan(ctx, scan.Config{
				Scopes:     scopes,
				Categories: categories,
			}, tenantID, credentialsFromEnv(a.cfg))
			if err != nil {
				return err
			}

			report, err := waitForReport(ctx, orch, scanID)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printSummary(report)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&providerList, "providers", nil, "providers to scan (default: all enabled)")
	cmd.Flags().StringSliceVar(&regions, "regions", nil, "regions to scan (default: all reachable)")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "recommendation categories to enable (default: all)")
	cmd.Flags().StringVar(&tenantID, "tenant", "default", "tenant identifier for the report")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the full report as JSON")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while scanning")
	return cmd
}

// waitForReport polls scan status until terminal, cancelling the scan when
// the context is interrupted
func waitForReport(ctx context.Context, svc scan.Service, scanID string) (*scan.Report, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = svc.CancelScan(context.Background(), scanID)
			// give the pipeline a moment to reach the stage boundary
			time.Sleep(time.Second)
			return nil, fmt.Errorf("scan %s cancelled", scanID)
		case <-ticker.C:
		}

		status, err := svc.GetScanStatus(ctx, scanID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case scan.StatusCompleted:
			return svc.GetScanReport(ctx, scanID)
		case scan.StatusFailed:
			// a failed scan may still carry a report with the violation
			if report, rerr := svc.GetScanReport(ctx, scanID); rerr == nil {
				printSummary(report)
			}
			return nil, fmt.Errorf("scan %s failed: %s", scanID, status.Error)
		}
	}
}

func printSummary(report *scan.Report) {
	fmt.Printf("Scan %s\n", report.ScanID)
	fmt.Printf("  Resources:       %d\n", len(report.Resources))
	fmt.Printf("  Coverage:        %.0f%%\n", report.Coverage*100)
	fmt.Printf("  Monthly cost:    %.2f %s\n", report.TotalMonthlyCost, report.Currency)
	fmt.Printf("  Potential save:  %.2f %s\n", report.TotalPotentialSavings, report.Currency)
	fmt.Printf("  Safety audit:    %d read-only, %d mutating\n",
		report.Audit.ReadOnlyCalls, report.Audit.MutatingCalls)
	if report.Reconciliation.BillingDays > 0 {
		fmt.Printf("  Billing accuracy: %.1f%% (validated: %v)\n",
			report.Reconciliation.Accuracy*100, report.Reconciliation.Validated)
	}
	if report.Forecast != nil {
		fmt.Printf("  30-day forecast: %.2f %s\n", report.Forecast.ForecastedCost, report.Forecast.Currency)
	}

	if len(report.Recommendations) > 0 {
		fmt.Println("\nTop recommendations:")
		for i, rec := range report.Recommendations {
			if i == 10 {
				fmt.Printf("  ... and %d more\n", len(report.Recommendations)-10)
				break
			}
			auto := ""
			if rec.Automated {
				auto = " [auto]"
			}
			fmt.Printf("  %2d. %-60s %8.2f/mo  conf %.2f%s\n",
				i+1, rec.Title, rec.PotentialSavings, rec.Confidence, auto)
		}
	}
	if report.Insight != "" {
		fmt.Printf("\n%s\n", report.Insight)
	}
}

func serveMetrics(addr string, a *app) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		a.log.WithError(err).Warn("metrics endpoint stopped")
	}
}
