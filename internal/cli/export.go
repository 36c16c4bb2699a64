package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rfm-dashboard/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var sqlitePath, jsonDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the RFM table to SQLite and JSON",
		Long: `Score the ledger and write the RFM table to the export SQLite database
and to a timestamped JSON file. Both sinks are written concurrently. Pass an
empty path to skip a sink.

Example:
  rfm export --sqlite rfm.db --json-dir exports/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("sqlite") {
				sqlitePath = a.cfg.Export.SQLitePath
			}
			if !cmd.Flags().Changed("json-dir") {
				jsonDir = a.cfg.Export.JSONDir
			}
			if sqlitePath == "" && jsonDir == "" {
				return fmt.Errorf("no export sink configured")
			}

			analytics, err := a.loadAnalytics(cmd.Context())
			if err != nil {
				return err
			}

			var writers []export.Writer
			if sqlitePath != "" {
				store, err := export.NewSQLiteStore(sqlitePath, a.logger)
				if err != nil {
					return err
				}
				defer store.Close()
				writers = append(writers, store)
			}
			if jsonDir != "" {
				writers = append(writers, export.JSONWriter{Dir: jsonDir})
			}

			locations, err := analytics.Export(cmd.Context(), writers...)
			if err != nil {
				return err
			}
			for _, loc := range locations {
				fmt.Fprintln(cmd.OutOrStdout(), loc)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "SQLite database path (default from config)")
	cmd.Flags().StringVar(&jsonDir, "json-dir", "", "JSON export directory (default from config)")
	return cmd
}
