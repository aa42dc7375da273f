// Package fleet holds the registry's domain types and the mission state machine.
package fleet

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"
)

// Position is a geographic fix. Altitude is metres above ground.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Telemetry is the last reported flight state of a drone.
type Telemetry struct {
	BatteryLevel      float64   `json:"batteryLevel"`
	LastKnownPosition *Position `json:"lastKnownPosition"`
	Speed             float64   `json:"speed,omitempty"`
	LastUpdated       time.Time `json:"lastUpdated,omitzero"`
}

// Drone is a registered aircraft.
type Drone struct {
	ID           string      `json:"_id"`
	Name         string      `json:"name"`
	SerialNumber string      `json:"serialNumber,omitempty"`
	Model        string      `json:"model,omitempty"`
	Status       DroneStatus `json:"status"`
	Telemetry    Telemetry   `json:"telemetry"`
	UpdatedAt    time.Time   `json:"updatedAt,omitzero"`
}

// Clone returns a copy that shares no pointers with d.
func (d Drone) Clone() Drone {
	if d.Telemetry.LastKnownPosition != nil {
		p := *d.Telemetry.LastKnownPosition
		d.Telemetry.LastKnownPosition = &p
	}
	return d
}

// DroneRef points at a drone. The registry sends either a bare id or an embedded drone.
type DroneRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

func (r *DroneRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.ID)
	}
	type plain DroneRef
	return json.Unmarshal(b, (*plain)(r))
}

// Progress tracks how far an active mission has got.
type Progress struct {
	PercentComplete float64   `json:"percentComplete"`
	StartedAt       time.Time `json:"startedAt,omitzero"`
	// EstimatedTimeRemaining is in seconds.
	EstimatedTimeRemaining float64 `json:"estimatedTimeRemaining,omitempty"`
}

// Schedule is the planned flight window.
type Schedule struct {
	StartTime time.Time `json:"startTime,omitzero"`
	EndTime   time.Time `json:"endTime,omitzero"`
}

// Waypoint is one point of a flight path. Coordinates are [longitude, latitude].
type Waypoint struct {
	Coordinates [2]float64 `json:"coordinates"`
	Altitude    float64    `json:"altitude,omitempty"`
}

// Boundary is a GeoJSON polygon.
type Boundary struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// Mission is a planned or executed flight.
type Mission struct {
	ID            string        `json:"_id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	MissionType   string        `json:"missionType,omitempty"`
	PatternType   string        `json:"patternType,omitempty"`
	Status        MissionStatus `json:"status"`
	AssignedDrone *DroneRef     `json:"assignedDrone,omitempty"`
	Progress      Progress      `json:"progress"`
	Waypoints     []Waypoint    `json:"waypoints,omitempty"`
	Boundary      *Boundary     `json:"boundary,omitempty"`
	Schedule      Schedule      `json:"schedule"`
	EndTime       time.Time     `json:"endTime,omitzero"`
	UpdatedAt     time.Time     `json:"updatedAt,omitzero"`
}

// DroneID returns the assigned drone's id or "".
func (m Mission) DroneID() string {
	if m.AssignedDrone == nil {
		return ""
	}
	return m.AssignedDrone.ID
}

// EndedAt is the time used to order mission history.
func (m Mission) EndedAt() time.Time {
	switch {
	case !m.EndTime.IsZero():
		return m.EndTime
	case !m.Schedule.EndTime.IsZero():
		return m.Schedule.EndTime
	default:
		return m.UpdatedAt
	}
}

// CanEditGeometry reports whether waypoints and boundary may still change.
func (m Mission) CanEditGeometry() bool {
	return m.Status == MissionScheduled
}

// Clone returns a deep copy of m.
func (m Mission) Clone() Mission {
	if m.AssignedDrone != nil {
		r := *m.AssignedDrone
		m.AssignedDrone = &r
	}
	m.Waypoints = slices.Clone(m.Waypoints)
	if m.Boundary != nil {
		b := Boundary{Type: m.Boundary.Type, Coordinates: make([][][2]float64, len(m.Boundary.Coordinates))}
		for i, ring := range m.Boundary.Coordinates {
			b.Coordinates[i] = slices.Clone(ring)
		}
		m.Boundary = &b
	}
	return m
}

// MissionPatch is a partial mission update. Nil fields are left unchanged.
type MissionPatch struct {
	Name          *string    `json:"name,omitempty"`
	Description   *string    `json:"description,omitempty"`
	AssignedDrone *string    `json:"assignedDrone,omitempty"`
	Schedule      *Schedule  `json:"schedule,omitempty"`
	Waypoints     []Waypoint `json:"waypoints,omitempty"`
	Boundary      *Boundary  `json:"boundary,omitempty"`
}

// TouchesGeometry reports whether the patch edits waypoints or boundary.
func (p MissionPatch) TouchesGeometry() bool {
	return p.Waypoints != nil || p.Boundary != nil
}

// CheckPatch rejects geometry edits on missions that already left scheduled.
func CheckPatch(m Mission, p MissionPatch) error {
	if p.TouchesGeometry() && !m.CanEditGeometry() {
		return NewError(CodeGeometryLocked, "waypoints and boundary are immutable once a mission has started", nil).
			With("mission_id", m.ID)
	}
	return nil
}

// ProgressUpdate is the body of PATCH /missions/{id}/progress.
type ProgressUpdate struct {
	PercentComplete        float64 `json:"percentComplete"`
	EstimatedTimeRemaining float64 `json:"estimatedTimeRemaining,omitempty"`
}

// MissionRef is the short mission form embedded in reports.
type MissionRef struct {
	ID          string `json:"_id"`
	Name        string `json:"name,omitempty"`
	MissionType string `json:"missionType,omitempty"`
}

// Report is a post-flight report.
type Report struct {
	ID        string      `json:"_id"`
	Title     string      `json:"title"`
	Summary   string      `json:"summary,omitempty"`
	Status    string      `json:"status,omitempty"`
	Mission   *MissionRef `json:"mission,omitempty"`
	CreatedAt time.Time   `json:"createdAt,omitzero"`
}

// OrganizationStats are the registry's aggregate counters.
type OrganizationStats struct {
	TotalMissions    int     `json:"totalMissions"`
	TotalFlightTime  float64 `json:"totalFlightTime"`
	TotalDistance    float64 `json:"totalDistance"`
	TotalAreaCovered float64 `json:"totalAreaCovered"`
	TotalDrones      int     `json:"totalDrones"`
	ActiveDrones     int     `json:"activeDrones"`
	TotalReports     int     `json:"totalReports"`
}

// User is the authenticated operator.
type User struct {
	ID           string `json:"_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// Credentials are the login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register form.
type Registration struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Organization string `json:"organization,omitempty"`
}
