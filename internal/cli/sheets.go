package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/config"
	"github.com/leapstack-labs/leapgrid/internal/registry"
)

// newSheetsCmd creates the sheets command: a tabular listing of the
// registered sheet manifests.
func newSheetsCmd(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sheets",
		Short: "List the sheet manifests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getCfg()
			logger := newLogger(cfg.Verbose)

			reg := registry.New(logger)
			if err := reg.LoadDir(cfg.SheetsDir); err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Table", "Key", "Columns"})
			for _, sheet := range reg.All() {
				t.AppendRow(table.Row{
					sheet.ID,
					sheet.Table,
					strings.Join(sheet.KeyColumns, ", "),
					len(sheet.Columns),
				})
			}
			t.Render()

			fmt.Fprintf(cmd.OutOrStdout(), "\n%d sheets\n", reg.Count())
			return nil
		},
	}
}
