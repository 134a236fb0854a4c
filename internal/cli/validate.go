package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/config"
	"github.com/leapstack-labs/leapgrid/internal/registry"
)

// newValidateCmd creates the validate command: parse and validate every
// sheet manifest without starting the server.
func newValidateCmd(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the sheet manifests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getCfg()
			logger := newLogger(cfg.Verbose)

			reg := registry.New(logger)
			if err := reg.LoadDir(cfg.SheetsDir); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d sheet manifests valid\n", reg.Count())
			return nil
		},
	}
}
