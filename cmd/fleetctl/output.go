package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"droneops-console/internal/fleet"
)

// render writes v as YAML, or calls table with a tabwriter for the default format.
func (a *app) render(w io.Writer, v any, table func(tw *tabwriter.Writer)) error {
	switch a.output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}
}

func missionTable(tw *tabwriter.Writer, ms ...fleet.Mission) {
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPROGRESS\tDRONE")
	for _, m := range ms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%s\n", m.ID, m.Name, m.Status, m.Progress.PercentComplete, orDash(m.DroneID()))
	}
}

func droneTable(tw *tabwriter.Writer, ds ...fleet.Drone) {
	fmt.Fprintln(tw, "ID\tNAME\tMODEL\tSTATUS\tBATTERY\tPOSITION")
	for _, d := range ds {
		pos := "-"
		if p := d.Telemetry.LastKnownPosition; p != nil {
			pos = fmt.Sprintf("%.5f,%.5f", p.Latitude, p.Longitude)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\t%s\n", d.ID, d.Name, orDash(d.Model), d.Status, d.Telemetry.BatteryLevel, pos)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
