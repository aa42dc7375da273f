package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"droneops-console/internal/api"
	"droneops-console/internal/fleet"
	"droneops-console/internal/session"
)

func newReportsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "File and read mission reports and organization statistics",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			rs, err := sess.API().ListReports(cmd.Context(), api.ListParams{})
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), rs, func(tw *tabwriter.Writer) { reportTable(tw, rs...) })
		},
	}
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show organization statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			st, err := sess.API().OrganizationStats(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), st, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Missions:\t%d\n", st.TotalMissions)
				fmt.Fprintf(tw, "Drones:\t%d (%d active)\n", st.TotalDrones, st.ActiveDrones)
				fmt.Fprintf(tw, "Reports:\t%d\n", st.TotalReports)
				fmt.Fprintf(tw, "Flight time:\t%.1f h\n", st.TotalFlightTime)
				fmt.Fprintf(tw, "Distance:\t%.1f\n", st.TotalDistance)
				fmt.Fprintf(tw, "Area covered:\t%.1f\n", st.TotalAreaCovered)
			})
		},
	}
	cmd.AddCommand(list, stats, newReportsGetCmd(a), newReportsCreateCmd(a), newReportsDeleteCmd(a))
	return cmd
}

func reportTable(tw *tabwriter.Writer, rs ...fleet.Report) {
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tMISSION\tCREATED")
	for _, r := range rs {
		mission := "-"
		if r.Mission != nil {
			mission = r.Mission.ID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Title, orDash(r.Status), mission, formatTime(r.CreatedAt))
	}
}

func newReportsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <report-id>",
		Short: "Show one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAPI(func(c *api.Client) error {
				r, err := c.GetReport(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), r, func(tw *tabwriter.Writer) {
					reportTable(tw, r)
					if r.Summary != "" {
						fmt.Fprintf(tw, "\n%s\n", r.Summary)
					}
				})
			})
		},
	}
}

func newReportsCreateCmd(a *app) *cobra.Command {
	var r fleet.Report
	var mission string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "File a report, optionally for a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mission != "" {
				r.Mission = &fleet.MissionRef{ID: mission}
			}
			return a.withAPI(func(c *api.Client) error {
				created, err := c.CreateReport(cmd.Context(), r)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), created, func(tw *tabwriter.Writer) { reportTable(tw, created) })
			})
		},
	}
	cmd.Flags().StringVar(&r.Title, "title", "", "Report title")
	cmd.Flags().StringVar(&r.Summary, "summary", "", "Report body")
	cmd.Flags().StringVar(&r.Status, "status", "", "Report status (default draft)")
	cmd.Flags().StringVar(&mission, "mission", "", "Mission the report covers")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newReportsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <report-id>",
		Short: "Delete a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAPI(func(c *api.Client) error {
				if err := c.DeleteReport(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted report %s\n", args[0])
				return nil
			})
		},
	}
}
