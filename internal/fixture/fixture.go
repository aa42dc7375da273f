// Package fixture loads seed data for the development registry.
package fixture

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"droneops-console/internal/fleet"
)

// maxPasswordLen is the longest password bcrypt accepts.
const maxPasswordLen = 72

//go:embed default.yaml
var defaultFixture []byte

// Fixture is the seed document.
type Fixture struct {
	Organization string    `yaml:"organization,omitempty"`
	Users        []User    `yaml:"users"`
	Drones       []Drone   `yaml:"drones"`
	Missions     []Mission `yaml:"missions"`
	Reports      []Report  `yaml:"reports,omitempty"`
}

// User is a login accepted by the registry.
type User struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role,omitempty"`
}

// Point is lat/lon/alt in fixture order.
type Point struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
	Alt float64 `yaml:"alt,omitempty"`
}

// Drone seeds one aircraft.
type Drone struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	Serial   string  `yaml:"serial,omitempty"`
	Model    string  `yaml:"model,omitempty"`
	Status   string  `yaml:"status,omitempty"`
	Battery  float64 `yaml:"battery"`
	Position *Point  `yaml:"position,omitempty"`
}

// Mission seeds one mission. Start and End are RFC 3339 timestamps.
type Mission struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Type        string    `yaml:"type,omitempty"`
	Pattern     string    `yaml:"pattern,omitempty"`
	Status      string    `yaml:"status,omitempty"`
	Drone       string    `yaml:"drone,omitempty"`
	Progress    float64   `yaml:"progress,omitempty"`
	Start       time.Time `yaml:"start,omitempty"`
	End         time.Time `yaml:"end,omitempty"`
	Waypoints   []Point   `yaml:"waypoints,omitempty"`
	Boundary    []Point   `yaml:"boundary,omitempty"`
}

// Report seeds one post-flight report.
type Report struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Summary string `yaml:"summary,omitempty"`
	Mission string `yaml:"mission,omitempty"`
}

// Load reads a YAML fixture from disk.
func Load(path string) (*Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(b)
}

// Default returns the embedded demo fleet.
func Default() *Fixture {
	f, err := Parse(defaultFixture)
	if err != nil {
		panic(fmt.Sprintf("embedded fixture: %v", err))
	}
	return f
}

// Parse decodes and validates a fixture document.
func Parse(b []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks ids are unique and references resolve.
func (f *Fixture) Validate() error {
	drones := map[string]bool{}
	for _, d := range f.Drones {
		if d.ID == "" {
			return fmt.Errorf("fixture: drone %q has no id", d.Name)
		}
		if drones[d.ID] {
			return fmt.Errorf("fixture: duplicate drone id %q", d.ID)
		}
		drones[d.ID] = true
	}
	missions := map[string]bool{}
	for _, m := range f.Missions {
		if m.ID == "" {
			return fmt.Errorf("fixture: mission %q has no id", m.Name)
		}
		if missions[m.ID] {
			return fmt.Errorf("fixture: duplicate mission id %q", m.ID)
		}
		missions[m.ID] = true
		if m.Drone != "" && !drones[m.Drone] {
			return fmt.Errorf("fixture: mission %q references unknown drone %q", m.ID, m.Drone)
		}
		switch fleet.MissionStatus(m.Status) {
		case "", fleet.MissionScheduled, fleet.MissionInProgress, fleet.MissionPaused, fleet.MissionCompleted, fleet.MissionAborted:
		default:
			return fmt.Errorf("fixture: mission %q has unknown status %q", m.ID, m.Status)
		}
	}
	for _, r := range f.Reports {
		if r.Mission != "" && !missions[r.Mission] {
			return fmt.Errorf("fixture: report %q references unknown mission %q", r.ID, r.Mission)
		}
	}
	emails := map[string]bool{}
	for _, u := range f.Users {
		if u.Email == "" || u.Password == "" {
			return fmt.Errorf("fixture: user %q needs email and password", u.Name)
		}
		if len(u.Password) > maxPasswordLen {
			return fmt.Errorf("fixture: password for %q is longer than %d bytes", u.Email, maxPasswordLen)
		}
		if emails[u.Email] {
			return fmt.Errorf("fixture: duplicate user email %q", u.Email)
		}
		emails[u.Email] = true
	}
	return nil
}

// FleetDrones converts the seeded drones.
func (f *Fixture) FleetDrones() []fleet.Drone {
	out := make([]fleet.Drone, 0, len(f.Drones))
	for _, d := range f.Drones {
		fd := fleet.Drone{
			ID:           d.ID,
			Name:         d.Name,
			SerialNumber: d.Serial,
			Model:        d.Model,
			Status:       fleet.DroneStatus(d.Status),
			Telemetry:    fleet.Telemetry{BatteryLevel: d.Battery},
		}
		if fd.Status == "" {
			fd.Status = fleet.DroneAvailable
		}
		if d.Position != nil {
			fd.Telemetry.LastKnownPosition = &fleet.Position{Latitude: d.Position.Lat, Longitude: d.Position.Lon, Altitude: d.Position.Alt}
		}
		out = append(out, fd)
	}
	return out
}

// FleetMissions converts the seeded missions. Drone names are resolved from the drone list.
func (f *Fixture) FleetMissions() []fleet.Mission {
	names := map[string]string{}
	for _, d := range f.Drones {
		names[d.ID] = d.Name
	}
	out := make([]fleet.Mission, 0, len(f.Missions))
	for _, m := range f.Missions {
		fm := fleet.Mission{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			MissionType: m.Type,
			PatternType: m.Pattern,
			Status:      fleet.MissionStatus(m.Status),
			Progress:    fleet.Progress{PercentComplete: m.Progress},
			Schedule:    fleet.Schedule{StartTime: m.Start, EndTime: m.End},
		}
		if fm.Status == "" {
			fm.Status = fleet.MissionScheduled
		}
		if fm.Status != fleet.MissionScheduled {
			fm.Progress.StartedAt = m.Start
		}
		if fm.Status.IsTerminal() {
			fm.EndTime = m.End
		}
		if m.Drone != "" {
			fm.AssignedDrone = &fleet.DroneRef{ID: m.Drone, Name: names[m.Drone]}
		}
		for _, p := range m.Waypoints {
			fm.Waypoints = append(fm.Waypoints, fleet.Waypoint{Coordinates: [2]float64{p.Lon, p.Lat}, Altitude: p.Alt})
		}
		if len(m.Boundary) > 0 {
			ring := make([][2]float64, 0, len(m.Boundary)+1)
			for _, p := range m.Boundary {
				ring = append(ring, [2]float64{p.Lon, p.Lat})
			}
			if ring[0] != ring[len(ring)-1] {
				ring = append(ring, ring[0])
			}
			fm.Boundary = &fleet.Boundary{Type: "Polygon", Coordinates: [][][2]float64{ring}}
		}
		out = append(out, fm)
	}
	return out
}

// FleetReports converts the seeded reports.
func (f *Fixture) FleetReports() []fleet.Report {
	names := map[string]string{}
	for _, m := range f.Missions {
		names[m.ID] = m.Name
	}
	out := make([]fleet.Report, 0, len(f.Reports))
	for _, r := range f.Reports {
		fr := fleet.Report{ID: r.ID, Title: r.Title, Summary: r.Summary, Status: "final"}
		if r.Mission != "" {
			fr.Mission = &fleet.MissionRef{ID: r.Mission, Name: names[r.Mission]}
		}
		out = append(out, fr)
	}
	return out
}
