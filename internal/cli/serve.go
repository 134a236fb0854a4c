package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/audit"
	"github.com/leapstack-labs/leapgrid/internal/config"
	"github.com/leapstack-labs/leapgrid/internal/registry"
	"github.com/leapstack-labs/leapgrid/internal/server"
	"github.com/leapstack-labs/leapgrid/internal/service"
	"github.com/leapstack-labs/leapgrid/internal/storage"
)

// newServeCmd creates the serve command.
func newServeCmd(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the sheet data server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getCfg()
			logger := newLogger(cfg.Verbose)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := registry.New(logger)
			if err := reg.LoadDir(cfg.SheetsDir); err != nil {
				return err
			}
			logger.Info("sheet manifests loaded", "dir", cfg.SheetsDir, "sheets", reg.Count())

			store, err := storage.Open(ctx, cfg.Target, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var sink audit.Sink
			if cfg.AuditPath != "" {
				storeSink, err := audit.OpenStore(cfg.AuditPath)
				if err != nil {
					return fmt.Errorf("failed to open audit store: %w", err)
				}
				defer func() { _ = storeSink.Close() }()
				sink = storeSink
			} else {
				sink = audit.NewLogSink(logger)
			}

			svc := service.New(service.Config{
				Registry: reg,
				Store:    store,
				Audit:    sink,
				Logger:   logger,
			})

			srv := server.New(server.Config{
				Service:  svc,
				Registry: reg,
				Port:     cfg.Port,
				Watch:    cfg.Watch,
				Logger:   logger,
			})

			if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
