package viewmodel

import (
	"cmp"
	"time"

	"droneops-console/internal/event"
	"droneops-console/internal/fleet"
)

// Reducer computes the next state. Reducers must not mutate their input.
type Reducer func(State) State

// Chain applies reducers in order.
func Chain(rs ...Reducer) Reducer {
	return func(s State) State {
		for _, r := range rs {
			s = r(s)
		}
		return s
	}
}

// ReplaceSnapshot discards cached missions and drones and installs a fresh
// registry snapshot. Pending commands survive for missions still in the working set.
func ReplaceSnapshot(missions []fleet.Mission, drones []fleet.Drone, at time.Time) Reducer {
	return func(s State) State {
		next := s
		next.Missions = make(map[string]fleet.Mission, len(missions))
		next.Drones = make(map[string]fleet.Drone, len(drones))
		var hist []fleet.Mission
		for _, m := range missions {
			m = m.Clone()
			if m.Status.IsTerminal() {
				hist = append(hist, m)
				continue
			}
			next.Missions[m.ID] = m
		}
		next.History = sortHistory(hist, s.HistoryLimit)
		for _, d := range drones {
			next.Drones[d.ID] = d.Clone()
		}
		next.Pending = make(map[string]PendingCommand, len(s.Pending))
		for id, pc := range s.Pending {
			if _, ok := next.Missions[id]; ok {
				next.Pending[id] = pc
			}
		}
		next.LoadedAt = at
		return next
	}
}

// ApplyEvent merges one push event received at the given time. Events carry
// absolute values, so applying the same event twice yields the same state.
// Unknown ids are ignored. received stamps missions that end without an end
// time so they still sort to the head of history.
func ApplyEvent(ev event.Event, received time.Time) Reducer {
	return func(s State) State {
		switch {
		case ev.Kind == event.DroneTelemetry:
			return applyTelemetry(s, ev)
		case ev.Kind == event.DroneStatus:
			return applyDroneStatus(s, ev)
		case ev.Kind == event.DroneAlert:
			return applyAlert(s, ev)
		case ev.Kind == event.MissionProgress:
			return applyProgress(s, ev)
		case ev.Kind.IsMission():
			return applyLifecycle(s, ev, received)
		}
		return s
	}
}

func applyTelemetry(s State, ev event.Event) State {
	d, ok := s.Drones[ev.DroneID]
	if !ok {
		return s
	}
	d = d.Clone()
	if ev.BatteryLevel != nil {
		d.Telemetry.BatteryLevel = *ev.BatteryLevel
	}
	if ev.Position != nil {
		p := *ev.Position
		d.Telemetry.LastKnownPosition = &p
	}
	if ev.Speed != nil {
		d.Telemetry.Speed = *ev.Speed
	}
	switch {
	case !ev.LastUpdated.IsZero():
		d.Telemetry.LastUpdated = ev.LastUpdated
	case !ev.Time.IsZero():
		d.Telemetry.LastUpdated = ev.Time
	}
	if ev.Status != "" {
		d.Status = fleet.DroneStatus(ev.Status)
	}
	return s.withDrone(d)
}

func applyDroneStatus(s State, ev event.Event) State {
	d, ok := s.Drones[ev.DroneID]
	if !ok || ev.Status == "" {
		return s
	}
	d.Status = fleet.DroneStatus(ev.Status)
	if !ev.Time.IsZero() {
		d.UpdatedAt = ev.Time
	}
	return s.withDrone(d)
}

func applyAlert(s State, ev event.Event) State {
	a := Alert{Time: ev.Time, MissionID: ev.MissionID, DroneID: ev.DroneID, Severity: ev.Severity, Message: ev.Message}
	if n := len(s.Alerts); n > 0 && s.Alerts[n-1] == a {
		return s
	}
	alerts := make([]Alert, 0, len(s.Alerts)+1)
	alerts = append(alerts, s.Alerts...)
	alerts = append(alerts, a)
	if len(alerts) > s.AlertLimit {
		alerts = alerts[len(alerts)-s.AlertLimit:]
	}
	s.Alerts = alerts
	return s
}

// applyProgress touches only percent complete and timing, never status.
func applyProgress(s State, ev event.Event) State {
	m, ok := s.Missions[ev.MissionID]
	if !ok {
		return s
	}
	if ev.PercentComplete != nil {
		m.Progress.PercentComplete = clampPercent(*ev.PercentComplete)
	}
	if !ev.StartedAt.IsZero() {
		m.Progress.StartedAt = ev.StartedAt
	}
	if ev.EstimatedTimeRemaining != nil {
		m.Progress.EstimatedTimeRemaining = *ev.EstimatedTimeRemaining
	}
	return s.withMission(m)
}

func applyLifecycle(s State, ev event.Event, received time.Time) State {
	status, ok := ev.Kind.MissionStatus()
	if !ok {
		return s
	}
	m, ok := s.Missions[ev.MissionID]
	if !ok {
		return s
	}
	m.Status = status
	if ev.DroneID != "" && m.AssignedDrone == nil {
		m.AssignedDrone = &fleet.DroneRef{ID: ev.DroneID}
	}
	if !ev.StartedAt.IsZero() {
		m.Progress.StartedAt = ev.StartedAt
	}
	if !ev.Time.IsZero() {
		m.UpdatedAt = ev.Time
	}
	if !status.IsTerminal() {
		s = s.withMission(m)
		if status == fleet.MissionInProgress {
			s = EngageDrone(m.DroneID())(s)
		}
		return s
	}
	switch {
	case !ev.EndTime.IsZero():
		m.EndTime = ev.EndTime
	case !m.EndTime.IsZero():
	case !ev.Time.IsZero():
		m.EndTime = ev.Time
	default:
		m.EndTime = received
	}
	return retire(s, m)
}

// retire moves a terminal mission out of the working set into history.
func retire(s State, m fleet.Mission) State {
	s = s.withoutMission(m.ID)
	if _, ok := s.Pending[m.ID]; ok {
		s = s.withoutPending(m.ID)
	}
	return s.withHistory(m)
}

// BeginCommand records a pending command. It is a no-op for missions outside the working set.
func BeginCommand(missionID string, pc PendingCommand) Reducer {
	return func(s State) State {
		if _, ok := s.Missions[missionID]; !ok {
			return s
		}
		return s.withPending(missionID, pc)
	}
}

// ConfirmCommand clears the pending entry and installs the registry's record
// as canonical. A terminal record retires the mission to history; without an
// end time of its own it ends at received.
func ConfirmCommand(missionID, commandID string, m fleet.Mission, received time.Time) Reducer {
	return func(s State) State {
		if pc, ok := s.Pending[missionID]; ok && pc.ID == commandID {
			s = s.withoutPending(missionID)
		}
		if m.ID == "" {
			m.ID = missionID
		}
		cur, inWorking := s.Missions[missionID]
		if !inWorking {
			// Already retired by a push event; refresh the history entry only.
			if m.Status.IsTerminal() {
				if old, ok := s.Mission(missionID); ok {
					m = m.Clone()
					if m.EndTime.IsZero() {
						m.EndTime = old.EndTime
					}
					return s.withHistory(m)
				}
			}
			return s
		}
		m = m.Clone()
		if m.Status == "" {
			m.Status = cur.Status
		}
		if m.Status.IsTerminal() {
			if m.EndTime.IsZero() {
				m.EndTime = cmp.Or(cur.EndTime, received)
			}
			return retire(s, m)
		}
		return s.withMission(m)
	}
}

// RollbackCommand drops a pending entry. The canonical status was never touched.
func RollbackCommand(missionID, commandID string) Reducer {
	return func(s State) State {
		if pc, ok := s.Pending[missionID]; ok && pc.ID == commandID {
			return s.withoutPending(missionID)
		}
		return s
	}
}

// ReleaseDrone marks a drone available after its mission ended.
func ReleaseDrone(droneID string) Reducer {
	return func(s State) State {
		d, ok := s.Drones[droneID]
		if !ok || d.Status == fleet.DroneAvailable {
			return s
		}
		d.Status = fleet.DroneAvailable
		return s.withDrone(d)
	}
}

// EngageDrone marks a drone in-mission once its mission is flying.
func EngageDrone(droneID string) Reducer {
	return func(s State) State {
		d, ok := s.Drones[droneID]
		if !ok || d.Status == fleet.DroneInMission {
			return s
		}
		d.Status = fleet.DroneInMission
		return s.withDrone(d)
	}
}

// ClearAlerts empties the alert log.
func ClearAlerts() Reducer {
	return func(s State) State {
		s.Alerts = nil
		return s
	}
}

// Reset drops everything except the bounds.
func Reset() Reducer {
	return func(s State) State {
		return NewState(s.HistoryLimit, s.AlertLimit)
	}
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
