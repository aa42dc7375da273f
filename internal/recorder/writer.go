// Package recorder archives the event stream a console session observes.
package recorder

import (
	"time"

	"droneops-console/internal/event"
	"droneops-console/internal/fleet"
)

// EventWriter persists push events.
type EventWriter interface {
	WriteEvent(ev event.Event) error
}

// batchWriter is implemented by writers that can store many events at once.
type batchWriter interface {
	WriteEvents(evs []event.Event) error
}

// SnapshotWriter is implemented by writers that also keep registry snapshots.
type SnapshotWriter interface {
	WriteSnapshot(s Snapshot) error
}

// Snapshot is a full registry load.
type Snapshot struct {
	At       time.Time       `json:"at"`
	Missions []fleet.Mission `json:"missions"`
	Drones   []fleet.Drone   `json:"drones"`
}

// TelemetryRow is one drone fix as stored in the time-series archives.
type TelemetryRow struct {
	DroneID   string    `json:"drone_id"`
	MissionID string    `json:"mission_id,omitempty"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Alt       float64   `json:"alt"`
	Battery   float64   `json:"battery"`
	Speed     float64   `json:"speed"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"ts"`
}

// rowMerger folds partial telemetry into complete rows. Telemetry events
// only carry changed fields, so the last known values fill the gaps.
type rowMerger struct {
	last map[string]TelemetryRow
}

func (m *rowMerger) merge(ev event.Event) (TelemetryRow, bool) {
	if m.last == nil {
		m.last = make(map[string]TelemetryRow)
	}
	switch ev.Kind {
	case event.DroneStatus:
		r := m.last[ev.DroneID]
		r.DroneID = ev.DroneID
		if ev.Status != "" {
			r.Status = ev.Status
		}
		m.last[ev.DroneID] = r
		return TelemetryRow{}, false
	case event.DroneTelemetry:
	default:
		return TelemetryRow{}, false
	}

	r := m.last[ev.DroneID]
	r.DroneID = ev.DroneID
	if ev.MissionID != "" {
		r.MissionID = ev.MissionID
	}
	if ev.Position != nil {
		r.Lat, r.Lon, r.Alt = ev.Position.Latitude, ev.Position.Longitude, ev.Position.Altitude
	}
	if ev.BatteryLevel != nil {
		r.Battery = *ev.BatteryLevel
	}
	if ev.Speed != nil {
		r.Speed = *ev.Speed
	}
	if ev.Status != "" {
		r.Status = ev.Status
	}
	switch {
	case !ev.LastUpdated.IsZero():
		r.Timestamp = ev.LastUpdated
	case !ev.Time.IsZero():
		r.Timestamp = ev.Time
	default:
		r.Timestamp = time.Now().UTC()
	}
	m.last[ev.DroneID] = r
	return r, true
}

func (m *rowMerger) rows(evs []event.Event) []TelemetryRow {
	var out []TelemetryRow
	for _, ev := range evs {
		if r, ok := m.merge(ev); ok {
			out = append(out, r)
		}
	}
	return out
}
