// Package cli provides the command-line interface for LeapGrid.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "leapgrid",
		Short: "LeapGrid - Declarative Sheet Data Service",
		Long: `LeapGrid serves tabular sheet data over HTTP, driven entirely by
declarative YAML sheet manifests: filtered, sorted, paginated reads and
optimistic-concurrency writes against a relational backend.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "version" {
				return nil
			}

			var err error
			cfg, err = config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			if cfg.Verbose {
				if used := config.ConfigFileUsed(); used != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", used)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./leapgrid.yaml)")
	rootCmd.PersistentFlags().String("sheets-dir", "", "Path to sheet manifests directory")
	rootCmd.PersistentFlags().Int("port", 0, "HTTP listen port")
	rootCmd.PersistentFlags().String("driver", "", "Backend driver (sqlite|duckdb|postgres)")
	rootCmd.PersistentFlags().String("database", "", "Backend database path (file-based drivers)")
	rootCmd.PersistentFlags().String("audit-path", "", "Path to the local audit database")
	rootCmd.PersistentFlags().Bool("watch", false, "Hot-reload sheet manifests on change")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(
		newServeCmd(func() *config.Config { return cfg }),
		newSheetsCmd(func() *config.Config { return cfg }),
		newValidateCmd(func() *config.Config { return cfg }),
		newAuditCmd(func() *config.Config { return cfg }),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger honoring the verbose flag.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
