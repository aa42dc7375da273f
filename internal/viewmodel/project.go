package viewmodel

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"droneops-console/internal/fleet"
)

// Active returns in-progress and paused missions ordered by start time, newest first.
func Active(s State) []fleet.Mission {
	var out []fleet.Mission
	for _, m := range s.Missions {
		if m.Status.IsActive() {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b fleet.Mission) int {
		if c := b.Progress.StartedAt.Compare(a.Progress.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Scheduled returns missions waiting to start, earliest first.
func Scheduled(s State) []fleet.Mission {
	var out []fleet.Mission
	for _, m := range s.Missions {
		if m.Status == fleet.MissionScheduled {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b fleet.Mission) int {
		if c := a.Schedule.StartTime.Compare(b.Schedule.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Drones returns all drones ordered by name.
func Drones(s State) []fleet.Drone {
	out := make([]fleet.Drone, 0, len(s.Drones))
	for _, d := range s.Drones {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b fleet.Drone) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// EffectiveStatus is what a view should display: the pending target while a
// command is in flight, otherwise the canonical status.
func EffectiveStatus(s State, missionID string) (status fleet.MissionStatus, pending bool, ok bool) {
	m, ok := s.Mission(missionID)
	if !ok {
		return "", false, false
	}
	if pc, p := s.Pending[missionID]; p {
		return pc.Target, true, true
	}
	return m.Status, false, true
}

// Marker is a drone drawn on the monitoring map.
type Marker struct {
	DroneID   string
	MissionID string
	Name      string
	Position  fleet.Position
	Battery   float64
}

// Markers returns the last known position of every drone flying an active
// mission. Drones without a position fix are skipped.
func Markers(s State) []Marker {
	var out []Marker
	for _, m := range Active(s) {
		d, ok := s.Drones[m.DroneID()]
		if !ok || d.Telemetry.LastKnownPosition == nil {
			continue
		}
		out = append(out, Marker{
			DroneID:   d.ID,
			MissionID: m.ID,
			Name:      d.Name,
			Position:  *d.Telemetry.LastKnownPosition,
			Battery:   d.Telemetry.BatteryLevel,
		})
	}
	return out
}

// Stats are the dashboard counters.
type Stats struct {
	TotalDrones       int
	ActiveDrones      int
	AvailableDrones   int
	TotalMissions     int
	ActiveMissions    int
	PausedMissions    int
	ScheduledMissions int
	CompletedMissions int
	AbortedMissions   int
}

// ComputeStats derives counters from s. Completed and aborted counts cover
// the retained history only.
func ComputeStats(s State) Stats {
	st := Stats{TotalDrones: len(s.Drones), TotalMissions: len(s.Missions) + len(s.History)}
	for _, d := range s.Drones {
		switch d.Status {
		case fleet.DroneInMission:
			st.ActiveDrones++
		case fleet.DroneAvailable:
			st.AvailableDrones++
		}
	}
	for _, m := range s.Missions {
		switch m.Status {
		case fleet.MissionInProgress:
			st.ActiveMissions++
		case fleet.MissionPaused:
			st.PausedMissions++
		case fleet.MissionScheduled:
			st.ScheduledMissions++
		}
	}
	for _, m := range s.History {
		switch m.Status {
		case fleet.MissionCompleted:
			st.CompletedMissions++
		case fleet.MissionAborted:
			st.AbortedMissions++
		}
	}
	return st
}

// ActivityItem is one line of the recent activity feed.
type ActivityItem struct {
	Kind   string // "mission" or "drone"
	ID     string
	Title  string
	Action string
	At     time.Time
}

var missionActions = map[fleet.MissionStatus]string{
	fleet.MissionScheduled:  "planned",
	fleet.MissionInProgress: "started",
	fleet.MissionPaused:     "paused",
	fleet.MissionCompleted:  "completed",
	fleet.MissionAborted:    "aborted",
}

// Activity lists the most recently touched missions and drones, newest first.
func Activity(s State, limit int) []ActivityItem {
	var out []ActivityItem
	add := func(m fleet.Mission) {
		at := m.UpdatedAt
		if m.Status.IsTerminal() {
			at = m.EndedAt()
		} else if at.IsZero() {
			at = cmp.Or(m.Progress.StartedAt, m.Schedule.StartTime)
		}
		out = append(out, ActivityItem{Kind: "mission", ID: m.ID, Title: m.Name, Action: missionActions[m.Status], At: at})
	}
	for _, m := range s.Missions {
		add(m)
	}
	for _, m := range s.History {
		add(m)
	}
	for _, d := range s.Drones {
		action := "added"
		if d.Status == fleet.DroneMaintenance {
			action = "maintenance"
		}
		at := cmp.Or(d.UpdatedAt, d.Telemetry.LastUpdated)
		out = append(out, ActivityItem{Kind: "drone", ID: d.ID, Title: d.Name, Action: action, At: at})
	}
	slices.SortStableFunc(out, func(a, b ActivityItem) int {
		if c := b.At.Compare(a.At); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind+a.ID, b.Kind+b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Ago renders t relative to now, e.g. "5 minutes ago".
func Ago(now, t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
