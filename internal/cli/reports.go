package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newReportsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect stored scan reports",
	}
	cmd.AddCommand(newReportsListCmd(a))
	cmd.AddCommand(newReportsShowCmd(a))
	return cmd
}

func newReportsListCmd(a *app) *cobra.Command {
	var (
		tenantID string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent reports for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := a.store.ListReports(cmd.Context(), tenantID, limit)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("no reports stored")
				return nil
			}
			fmt.Printf("%-36s  %-20s  %-9s  %10s  %10s  %s\n",
				"SCAN", "GENERATED", "STATUS", "COST", "SAVINGS", "AUDIT")
			for _, s := range summaries {
				audit := "passed"
				if !s.AuditPassed {
					audit = "FAILED"
				}
				fmt.Printf("%-36s  %-20s  %-9s  %10.2f  %10.2f  %s\n",
					s.ScanID, s.GeneratedAt.Format("2006-01-02 15:04:05"),
					s.Status, s.TotalCost, s.Savings, audit)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "default", "tenant identifier")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

func newReportsShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <scan-id>",
		Short: "Print one stored report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.store.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	return cmd
}
