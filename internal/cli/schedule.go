package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/worker"
)

func newScheduleCmd(a *app) *cobra.Command {
	var (
		cronSpec    string
		tenantID    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run recurring scans on a cron schedule",
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

			if cronSpec == "" {
				cronSpec = a.cfg.Schedule.CronSpec
			}

			scopes := make([]scan.ProviderScope, 0, len(a.cfg.Provider.Enabled))
			for _, p := range a.cfg.Provider.Enabled {
				scopes = append(scopes, scan.ProviderScope{Provider: p})
			}

			sched := worker.NewScheduler(a.log)
			err = sched.Add(cronSpec, "full-scan", func(ctx context.Context) error {
				scanID, err := orch.StartScan(ctx, scan.Config{Scopes: scopes},
					tenantID, credentialsFromEnv(a.cfg))
				if err != nil {
					return err
				}
				report, err := waitForReport(ctx, orch, scanID)
				if err != nil {
					return err
				}
				a.log.WithFields(map[string]interface{}{
					"scan_id":   report.ScanID,
					"resources": len(report.Resources),
					"savings":   report.TotalPotentialSavings,
				}).Info("scheduled scan stored")
				return nil
			})
			if err != nil {
				return fmt.Errorf("invalid cron spec %q: %w", cronSpec, err)
			}

			sched.Start()
			a.log.Infof("scheduler running with spec %q", cronSpec)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			sched.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&cronSpec, "cron", "", "cron spec (default from SCHEDULE_CRON)")
	cmd.Flags().StringVar(&tenantID, "tenant", "default", "tenant identifier for the reports")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}
