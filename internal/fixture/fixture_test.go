package fixture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"droneops-console/internal/fleet"
)

func TestLoadFixture(t *testing.T) {
	yaml := `
users:
  - {id: u1, name: Op, email: op@example.com, password: pw}
drones:
  - id: d1
    name: Alpha
    battery: 90
    position: {lat: 1, lon: 2, alt: 3}
missions:
  - id: m1
    name: Survey
    status: in-progress
    drone: d1
    start: 2025-01-01T10:00:00Z
    waypoints:
      - {lat: 1, lon: 2}
    boundary:
      - {lat: 0, lon: 0}
      - {lat: 0, lon: 1}
      - {lat: 1, lon: 1}
  - id: m2
    name: Later
reports:
  - {id: r1, title: Done, mission: m1}
`
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	drones := f.FleetDrones()
	if len(drones) != 1 || drones[0].Status != fleet.DroneAvailable {
		t.Fatalf("unexpected drones: %+v", drones)
	}
	if p := drones[0].Telemetry.LastKnownPosition; p == nil || p.Latitude != 1 || p.Longitude != 2 {
		t.Fatalf("position not converted: %+v", p)
	}

	ms := f.FleetMissions()
	if len(ms) != 2 {
		t.Fatalf("missions = %d, want 2", len(ms))
	}
	m1 := ms[0]
	if m1.DroneID() != "d1" || m1.AssignedDrone.Name != "Alpha" {
		t.Fatalf("drone ref = %+v", m1.AssignedDrone)
	}
	if m1.Progress.StartedAt.IsZero() {
		t.Fatalf("in-progress mission should have startedAt")
	}
	if m1.Waypoints[0].Coordinates != [2]float64{2, 1} {
		t.Fatalf("waypoint not [lon, lat]: %v", m1.Waypoints[0].Coordinates)
	}
	ring := m1.Boundary.Coordinates[0]
	if len(ring) != 4 || ring[0] != ring[3] {
		t.Fatalf("boundary ring not closed: %v", ring)
	}
	if ms[1].Status != fleet.MissionScheduled {
		t.Fatalf("default status = %s, want scheduled", ms[1].Status)
	}

	reports := f.FleetReports()
	if reports[0].Mission == nil || reports[0].Mission.Name != "Survey" {
		t.Fatalf("report mission = %+v", reports[0].Mission)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"duplicate drone":  "drones: [{id: d1, name: a}, {id: d1, name: b}]",
		"unknown drone":    "missions: [{id: m1, name: a, drone: ghost}]",
		"unknown status":   "missions: [{id: m1, name: a, status: flying}]",
		"orphan report":    "reports: [{id: r1, title: a, mission: ghost}]",
		"user no password": "users: [{name: a, email: a@b.c}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil || !strings.HasPrefix(err.Error(), "fixture:") {
				t.Fatalf("expected fixture error, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultFixture(t *testing.T) {
	f := Default()
	if len(f.Users) == 0 || len(f.Drones) == 0 || len(f.Missions) == 0 {
		t.Fatalf("default fixture is empty")
	}
	var terminal int
	for _, m := range f.FleetMissions() {
		if m.Status.IsTerminal() {
			terminal++
			if m.EndTime.IsZero() {
				t.Fatalf("terminal mission %s has no end time", m.ID)
			}
		}
	}
	if terminal == 0 {
		t.Fatalf("default fixture should include history")
	}
}
