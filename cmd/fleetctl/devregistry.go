package main

import (
	"time"

	"github.com/spf13/cobra"

	"droneops-console/internal/devregistry"
	"droneops-console/internal/fixture"
)

func newDevRegistryCmd(a *app) *cobra.Command {
	var (
		addr        string
		fixturePath string
		tick        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "devregistry",
		Short: "Run a local registry with a simulated fleet",
		Long: "devregistry serves the registry REST API and event channel from an in-memory fixture " +
			"and flies in-progress missions so the console can be exercised without a backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.DevRegistry
			if addr != "" {
				cfg.Addr = addr
			}
			if fixturePath != "" {
				cfg.Fixture = fixturePath
			}
			if tick > 0 {
				cfg.Tick = tick
			}

			f := fixture.Default()
			if cfg.Fixture != "" {
				var err error
				if f, err = fixture.Load(cfg.Fixture); err != nil {
					return err
				}
			}
			srv := devregistry.New(cfg, f, a.log)
			return srv.ListenAndServe(cmd.Context(), cfg.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default devregistry.addr)")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "YAML fixture replacing the built-in fleet")
	cmd.Flags().DurationVar(&tick, "tick", 0, "Simulation tick interval")
	return cmd
}
