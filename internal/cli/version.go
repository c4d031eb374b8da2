package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set via -ldflags at build time
var (
	version = "dev"
	commit  = "none"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("costscope %s (%s)\n", version, commit)
		},
	}
}
