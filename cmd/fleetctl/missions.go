package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"droneops-console/internal/api"
	"droneops-console/internal/fleet"
	"droneops-console/internal/session"
)

func newMissionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "missions",
		Aliases: []string{"mission", "m"},
		Short:   "Plan, inspect and control missions",
	}
	cmd.AddCommand(
		newMissionsListCmd(a),
		newMissionsGetCmd(a),
		newMissionsCreateCmd(a),
		newMissionsUpdateCmd(a),
		newMissionsDeleteCmd(a),
		newMissionsProgressCmd(a),
	)
	for _, act := range fleet.Actions {
		cmd.AddCommand(newMissionActionCmd(a, act))
	}
	return cmd
}

func newMissionsListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			ms, err := sess.API().ListMissions(cmd.Context(), api.ListParams{Status: status})
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), ms, func(tw *tabwriter.Writer) { missionTable(tw, ms...) })
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only missions with this status")
	return cmd
}

func newMissionsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <mission-id>",
		Short: "Show one mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			m, err := sess.API().GetMission(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), m, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "ID:\t%s\n", m.ID)
				fmt.Fprintf(tw, "Name:\t%s\n", m.Name)
				fmt.Fprintf(tw, "Type:\t%s\n", orDash(m.MissionType))
				fmt.Fprintf(tw, "Status:\t%s\n", m.Status)
				fmt.Fprintf(tw, "Drone:\t%s\n", orDash(m.DroneID()))
				fmt.Fprintf(tw, "Progress:\t%.1f%%\n", m.Progress.PercentComplete)
				fmt.Fprintf(tw, "Waypoints:\t%d\n", len(m.Waypoints))
				fmt.Fprintf(tw, "Scheduled:\t%s - %s\n", formatTime(m.Schedule.StartTime), formatTime(m.Schedule.EndTime))
				fmt.Fprintf(tw, "Ended:\t%s\n", formatTime(m.EndTime))
			})
		},
	}
}

// newMissionActionCmd issues one control action through the session's
// dispatcher, so the state machine is checked before the registry is asked.
func newMissionActionCmd(a *app, act fleet.Action) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   string(act) + " <mission-id>",
		Short: fmt.Sprintf("%s a mission", act),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			ctx := cmd.Context()
			if _, err := sess.OpenView(ctx); err != nil {
				return err
			}
			m, err := sess.Dispatch(ctx, args[0], act, reason)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), m, func(tw *tabwriter.Writer) { missionTable(tw, m) })
		},
	}
	if act == fleet.ActionAbort {
		cmd.Flags().StringVar(&reason, "reason", "", "Why the mission is aborted")
		cmd.MarkFlagRequired("reason")
	}
	return cmd
}

// planFlags are the mission planning inputs shared by create and update.
type planFlags struct {
	name, description, drone string
	start, end               string
	waypoints                []string
}

func (f *planFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "Mission name")
	fs.StringVar(&f.description, "description", "", "Free-form description")
	fs.StringVar(&f.drone, "drone", "", "Assigned drone id")
	fs.StringVar(&f.start, "start", "", "Planned start (RFC 3339)")
	fs.StringVar(&f.end, "end", "", "Planned end (RFC 3339)")
	fs.StringArrayVar(&f.waypoints, "waypoint", nil, "Waypoint as lon,lat[,alt]; repeat in flight order")
}

func (f *planFlags) schedule() (fleet.Schedule, error) {
	var (
		sc  fleet.Schedule
		err error
	)
	if f.start != "" {
		if sc.StartTime, err = time.Parse(time.RFC3339, f.start); err != nil {
			return sc, fmt.Errorf("--start: %w", err)
		}
	}
	if f.end != "" {
		if sc.EndTime, err = time.Parse(time.RFC3339, f.end); err != nil {
			return sc, fmt.Errorf("--end: %w", err)
		}
	}
	if !sc.StartTime.IsZero() && !sc.EndTime.IsZero() && !sc.EndTime.After(sc.StartTime) {
		return sc, errors.New("--end must be after --start")
	}
	return sc, nil
}

func (f *planFlags) route() ([]fleet.Waypoint, error) {
	out := make([]fleet.Waypoint, 0, len(f.waypoints))
	for _, raw := range f.waypoints {
		wp, err := parseWaypoint(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, wp)
	}
	return out, nil
}

// parseWaypoint reads "lon,lat" or "lon,lat,alt".
func parseWaypoint(s string) (fleet.Waypoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return fleet.Waypoint{}, fmt.Errorf("waypoint %q: want lon,lat[,alt]", s)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fleet.Waypoint{}, fmt.Errorf("waypoint %q: %w", s, err)
		}
		vals[i] = v
	}
	lon, lat := vals[0], vals[1]
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fleet.Waypoint{}, fmt.Errorf("waypoint %q: coordinates out of range", s)
	}
	return fleet.Waypoint{Coordinates: [2]float64{lon, lat}, Altitude: vals[2]}, nil
}

func newMissionsCreateCmd(a *app) *cobra.Command {
	var (
		f       planFlags
		kind    string
		pattern string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Plan a new mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := f.schedule()
			if err != nil {
				return err
			}
			wps, err := f.route()
			if err != nil {
				return err
			}
			m := fleet.Mission{
				Name:        f.name,
				Description: f.description,
				MissionType: kind,
				PatternType: pattern,
				Schedule:    sc,
				Waypoints:   wps,
			}
			if f.drone != "" {
				m.AssignedDrone = &fleet.DroneRef{ID: f.drone}
			}
			return a.withAPI(func(c *api.Client) error {
				created, err := c.CreateMission(cmd.Context(), m)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), created, func(tw *tabwriter.Writer) { missionTable(tw, created) })
			})
		},
	}
	f.register(cmd.Flags())
	cmd.Flags().StringVar(&kind, "type", "", "Mission type, e.g. survey or inspection")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Flight pattern, e.g. grid or perimeter")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newMissionsUpdateCmd(a *app) *cobra.Command {
	var f planFlags
	cmd := &cobra.Command{
		Use:   "update <mission-id>",
		Short: "Change a mission's plan",
		Long:  "update edits name, description, schedule, drone or route. The route and drone are locked once the mission has started.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p fleet.MissionPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				p.Name = &f.name
			}
			if flags.Changed("description") {
				p.Description = &f.description
			}
			if flags.Changed("drone") {
				p.AssignedDrone = &f.drone
			}
			if flags.Changed("start") || flags.Changed("end") {
				sc, err := f.schedule()
				if err != nil {
					return err
				}
				p.Schedule = &sc
			}
			if flags.Changed("waypoint") {
				wps, err := f.route()
				if err != nil {
					return err
				}
				p.Waypoints = wps
			}
			if p.Name == nil && p.Description == nil && p.AssignedDrone == nil && p.Schedule == nil && p.Waypoints == nil {
				return errors.New("nothing to update")
			}
			return a.withAPI(func(c *api.Client) error {
				m, err := c.UpdateMission(cmd.Context(), args[0], p)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), m, func(tw *tabwriter.Writer) { missionTable(tw, m) })
			})
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func newMissionsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <mission-id>",
		Short: "Delete a mission that is not flying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAPI(func(c *api.Client) error {
				if err := c.DeleteMission(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted mission %s\n", args[0])
				return nil
			})
		},
	}
}

func newMissionsProgressCmd(a *app) *cobra.Command {
	var (
		p   fleet.ProgressUpdate
		eta time.Duration
	)
	cmd := &cobra.Command{
		Use:   "progress <mission-id>",
		Short: "Report progress for an active mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.PercentComplete < 0 || p.PercentComplete > 100 {
				return fmt.Errorf("percent must be between 0 and 100, got %.1f", p.PercentComplete)
			}
			p.EstimatedTimeRemaining = eta.Seconds()
			return a.withAPI(func(c *api.Client) error {
				m, err := c.UpdateProgress(cmd.Context(), args[0], p)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), m, func(tw *tabwriter.Writer) { missionTable(tw, m) })
			})
		},
	}
	cmd.Flags().Float64Var(&p.PercentComplete, "percent", 0, "Percent complete")
	cmd.Flags().DurationVar(&eta, "eta", 0, "Estimated time remaining")
	cmd.MarkFlagRequired("percent")
	return cmd
}
