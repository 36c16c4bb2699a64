// Package cli implements the rfm command-line interface: offline segment
// reports, aggregates, exports and reload requests against the same ledger
// sources the dashboard serves.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/ledger"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/services"
	"rfm-dashboard/internal/version"
)

// app holds the state shared by all subcommands once the root command has
// loaded the configuration.
type app struct {
	cfgFile  string
	source   string
	logLevel string
	jsonOut  bool

	cfg    *config.Config
	logger *slog.Logger
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "rfm",
		Short: "Customer RFM segmentation over a sales ledger",
		Long: `rfm loads a transaction ledger (CSV file, postgres:// table or the
built-in demo ledger), scores every customer on recency, frequency and
monetary value, and reports segments and revenue aggregates.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&a.source, "source", "", "ledger source: CSV path, postgres:// URL or \"demo\"")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON instead of a table")

	root.AddCommand(
		newSegmentsCmd(a),
		newCustomersCmd(a),
		newAggregatesCmd(a),
		newExportCmd(a),
		newReloadCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.source != "" {
		cfg.Ledger.Source = a.source
	}
	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
	}

	a.cfg = cfg
	a.logger = observability.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logger)
	return nil
}

// loadAnalytics reads and scores the configured ledger.
func (a *app) loadAnalytics(ctx context.Context) (*services.Analytics, error) {
	analytics := services.NewAnalytics(services.Options{
		CacheDir: a.cfg.Ledger.CacheDir,
		StubSeed: a.cfg.Ledger.StubSeed,
		Logger:   a.logger,
	})

	src := ledger.OpenSource(a.cfg.Ledger.Source, ledger.SourceOptions{
		Table:    a.cfg.Ledger.Table,
		DemoRows: a.cfg.Ledger.DemoRows,
		DemoSeed: a.cfg.Ledger.StubSeed,
	})

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Ledger.LoadTimeout)
	defer cancel()

	start := time.Now()
	if err := analytics.Load(ctx, src); err != nil {
		return nil, err
	}
	a.logger.Debug("ledger loaded", "source", src.Name(), "duration", time.Since(start))
	return analytics, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// The version needs no configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
