package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"droneops-console/internal/api"
	"droneops-console/internal/fleet"
	"droneops-console/internal/session"
)

func newDronesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "drones",
		Aliases: []string{"drone", "d"},
		Short:   "List, inspect and manage drones",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List drones",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			ds, err := sess.API().ListDrones(cmd.Context(), api.ListParams{Status: status})
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), ds, func(tw *tabwriter.Writer) { droneTable(tw, ds...) })
		},
	}
	list.Flags().StringVar(&status, "status", "", "Only drones with this status")

	get := &cobra.Command{
		Use:   "get <drone-id>",
		Short: "Show one drone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			d, err := sess.API().GetDrone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), d, func(tw *tabwriter.Writer) {
				droneTable(tw, d)
				fmt.Fprintf(tw, "\nLast update:\t%s\n", formatTime(d.Telemetry.LastUpdated))
			})
		},
	}

	cmd.AddCommand(list, get, newDronesAddCmd(a), newDronesUpdateCmd(a), newDronesDeleteCmd(a), newDronesTelemetryCmd(a))
	return cmd
}

func newDronesAddCmd(a *app) *cobra.Command {
	var d fleet.Drone
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a drone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAPI(func(c *api.Client) error {
				created, err := c.CreateDrone(cmd.Context(), d)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), created, func(tw *tabwriter.Writer) { droneTable(tw, created) })
			})
		},
	}
	cmd.Flags().StringVar(&d.Name, "name", "", "Drone name")
	cmd.Flags().StringVar(&d.Model, "model", "", "Airframe model")
	cmd.Flags().StringVar(&d.SerialNumber, "serial", "", "Serial number")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newDronesUpdateCmd(a *app) *cobra.Command {
	var name, model, status string
	cmd := &cobra.Command{
		Use:   "update <drone-id>",
		Short: "Change a drone's name, model or status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p api.DronePatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				p.Name = &name
			}
			if flags.Changed("model") {
				p.Model = &model
			}
			if flags.Changed("status") {
				st, err := fleet.ParseDroneStatus(status)
				if err != nil {
					return err
				}
				p.Status = &st
			}
			if p == (api.DronePatch{}) {
				return errors.New("nothing to update: set --name, --model or --status")
			}
			return a.withAPI(func(c *api.Client) error {
				d, err := c.UpdateDrone(cmd.Context(), args[0], p)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), d, func(tw *tabwriter.Writer) { droneTable(tw, d) })
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&model, "model", "", "New model")
	cmd.Flags().StringVar(&status, "status", "", "New status (available, in-mission, charging, maintenance, inactive)")
	return cmd
}

func newDronesDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <drone-id>",
		Short: "Remove a drone that is not flying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAPI(func(c *api.Client) error {
				if err := c.DeleteDrone(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted drone %s\n", args[0])
				return nil
			})
		},
	}
}

// newDronesTelemetryCmd reports a telemetry sample, the way a ground station would.
func newDronesTelemetryCmd(a *app) *cobra.Command {
	var (
		t             fleet.Telemetry
		lat, lon, alt float64
	)
	cmd := &cobra.Command{
		Use:   "telemetry <drone-id>",
		Short: "Report a telemetry sample for a drone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if t.BatteryLevel < 0 || t.BatteryLevel > 100 {
				return fmt.Errorf("battery must be between 0 and 100, got %.1f", t.BatteryLevel)
			}
			flags := cmd.Flags()
			if flags.Changed("lat") || flags.Changed("lon") {
				t.LastKnownPosition = &fleet.Position{Latitude: lat, Longitude: lon, Altitude: alt}
			}
			return a.withAPI(func(c *api.Client) error {
				d, err := c.UpdateTelemetry(cmd.Context(), args[0], t)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), d, func(tw *tabwriter.Writer) { droneTable(tw, d) })
			})
		},
	}
	cmd.Flags().Float64Var(&t.BatteryLevel, "battery", 0, "Battery level in percent")
	cmd.Flags().Float64Var(&t.Speed, "speed", 0, "Ground speed in m/s")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	cmd.Flags().Float64Var(&alt, "alt", 0, "Altitude in metres above ground")
	cmd.MarkFlagRequired("battery")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
	return cmd
}
