package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"droneops-console/internal/dashboard"
)

func newDashboardCmd(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Render Grafana dashboards for the recorder archives",
		Long: "dashboard writes Grafana dashboard JSON for the GreptimeDB and SQLite archives. " +
			"Datasource UIDs are read from GREPTIMEDB_DATASOURCE_UID and SQLITE_DATASOURCE_UID.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dashboard.Render(outDir, a.cfg.Recorder.Greptime); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dashboards written to %s\n", outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "build", "Output directory")
	return cmd
}
