// Package cli wires the command-line interface
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/costscope/costscope/internal/config"
	"github.com/costscope/costscope/internal/domain/credential"
	"github.com/costscope/costscope/internal/insights"
	"github.com/costscope/costscope/internal/pkg/logger"
	"github.com/costscope/costscope/internal/providers"
	"github.com/costscope/costscope/internal/repository/sqlite"
	"github.com/costscope/costscope/internal/scanner"
)

// app bundles the shared dependencies the commands need
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store *sqlite.ReportStore
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "costscope",
		Short: "Multi-cloud resource discovery and cost optimization scanner",
		Long: `costscope discovers resources across AWS, Azure and GCP, prices them
against live and static pricing data, and produces ranked cost
optimization recommendations. Every provider call is read-only and
audited.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.New(logger.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})

			store, err := sqlite.NewReportStore(cfg.Report.SQLitePath)
			if err != nil {
				return err
			}
			a.store = store
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.store != nil {
				a.store.Close()
			}
		},
	}

	root.AddCommand(newScanCmd(a))
	root.AddCommand(newScheduleCmd(a))
	root.AddCommand(newReportsCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newOrchestrator assembles the scan pipeline from the app config
func (a *app) newOrchestrator() (*scanner.Orchestrator, *scanner.EventQueue, error) {
	registry, err := providers.NewRegistry(a.cfg.Provider)
	if err != nil {
		return nil, nil, err
	}

	events := scanner.NewEventQueue(
		a.cfg.Scanner.EventQueueCapacity,
		a.cfg.Scanner.EventWorkers,
		func(ev scanner.Event) {
			a.log.WithFields(map[string]interface{}{
				"scan_id":  ev.ScanID,
				"step":     ev.Step,
				"progress": ev.Progress,
			}).Debug("scan progress")
		},
		a.log,
	)

	gen := insights.Select(a.cfg.Insights.OpenAIAPIKey, a.cfg.Insights.Model)

	orch, err := scanner.New(a.cfg.Scanner, registry, a.store, gen, events, a.log)
	if err != nil {
		events.Close()
		return nil, nil, err
	}
	return orch, events, nil
}

// credentialsFromEnv reads provider credentials for this invocation. They
// are handed to the scan and discarded with it.
func credentialsFromEnv(cfg *config.Config) credential.Bundle {
	var bundle credential.Bundle

	if id := os.Getenv("AWS_ACCESS_KEY_ID"); id != "" {
		bundle.AWS = &credential.AWS{
			AccessKeyID:     id,
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Region:          os.Getenv("AWS_REGION"),
		}
	}
	if tenant := os.Getenv("AZURE_TENANT_ID"); tenant != "" {
		bundle.Azure = &credential.Azure{
			TenantID:       tenant,
			ClientID:       os.Getenv("AZURE_CLIENT_ID"),
			ClientSecret:   os.Getenv("AZURE_CLIENT_SECRET"),
			SubscriptionID: os.Getenv("AZURE_SUBSCRIPTION_ID"),
			Location:       os.Getenv("AZURE_LOCATION"),
		}
	}
	if project := os.Getenv("GCP_PROJECT_ID"); project != "" {
		bundle.GCP = &credential.GCP{
			ProjectID:          project,
			ServiceAccountJSON: os.Getenv("GCP_SERVICE_ACCOUNT_JSON"),
			BillingDataset:     os.Getenv("GCP_BILLING_DATASET"),
		}
	}
	return bundle
}
