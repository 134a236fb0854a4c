package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "leapgrid %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  build date: %s\n", BuildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit:     %s\n", GitCommit)
		},
	}
}
