package cli

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/audit"
	"github.com/leapstack-labs/leapgrid/internal/config"
)

// newAuditCmd creates the audit command: show recent audit events for a
// sheet from the local audit store.
func newAuditCmd(getCfg func() *config.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit <sheet-id>",
		Short: "Show recent audit events for a sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getCfg()
			if cfg.AuditPath == "" {
				return fmt.Errorf("no audit store configured (audit_path is empty)")
			}

			sink, err := audit.OpenStore(cfg.AuditPath)
			if err != nil {
				return err
			}
			defer func() { _ = sink.Close() }()

			events, err := sink.Recent(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"At", "Category", "Count", "Actor", "Session"})
			for _, ev := range events {
				t.AppendRow(table.Row{
					ev.At.Format(time.RFC3339),
					string(ev.Category),
					ev.Count,
					ev.Actor,
					ev.SessionID,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events to show")
	return cmd
}
