package fleet

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from MissionStatus
		act  Action
		to   MissionStatus
		ok   bool
	}{
		{MissionScheduled, ActionStart, MissionInProgress, true},
		{MissionScheduled, ActionAbort, MissionAborted, true},
		{MissionScheduled, ActionPause, "", false},
		{MissionScheduled, ActionComplete, "", false},
		{MissionInProgress, ActionPause, MissionPaused, true},
		{MissionInProgress, ActionComplete, MissionCompleted, true},
		{MissionInProgress, ActionAbort, MissionAborted, true},
		{MissionInProgress, ActionResume, "", false},
		{MissionPaused, ActionResume, MissionInProgress, true},
		{MissionPaused, ActionAbort, MissionAborted, true},
		{MissionPaused, ActionComplete, "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.from, tt.act), func(t *testing.T) {
			to, ok := Next(tt.from, tt.act)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, s := range []MissionStatus{MissionCompleted, MissionAborted} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, Allowed(s), "status %s", s)
	}
}

func TestAllowed(t *testing.T) {
	assert.Equal(t, []Action{ActionPause, ActionComplete, ActionAbort}, Allowed(MissionInProgress))
	assert.Equal(t, []Action{ActionResume, ActionAbort}, Allowed(MissionPaused))
}

func TestTransitionError(t *testing.T) {
	_, err := Transition("m1", MissionCompleted, ActionStart)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrNetwork))

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "m1", fe.Context["mission_id"])
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("list missions: %w", NewError(CodeNetwork, "GET /api/missions", cause))
	assert.True(t, Retryable(err))
	assert.Equal(t, CodeNetwork, CodeOf(err))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, ErrorCode(""), CodeOf(cause))
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("abort")
	require.NoError(t, err)
	assert.Equal(t, ActionAbort, a)
	assert.True(t, a.Releases())
	assert.False(t, ActionPause.Releases())

	_, err = ParseAction("launch")
	assert.Error(t, err)
}

func TestActionEngages(t *testing.T) {
	assert.True(t, ActionStart.Engages())
	assert.True(t, ActionResume.Engages())
	assert.False(t, ActionPause.Engages())
	assert.False(t, ActionAbort.Engages())
}

func TestParseDroneStatus(t *testing.T) {
	st, err := ParseDroneStatus("maintenance")
	require.NoError(t, err)
	assert.Equal(t, DroneMaintenance, st)

	_, err = ParseDroneStatus("flying")
	assert.Error(t, err)
}

func TestDroneRefAcceptsIDOrObject(t *testing.T) {
	var m Mission
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"m1","status":"scheduled","assignedDrone":"d1"}`), &m))
	assert.Equal(t, "d1", m.DroneID())

	require.NoError(t, json.Unmarshal([]byte(`{"_id":"m2","status":"scheduled","assignedDrone":{"_id":"d2","name":"Mapper"}}`), &m))
	assert.Equal(t, "d2", m.DroneID())
	assert.Equal(t, "Mapper", m.AssignedDrone.Name)
}

func TestEndedAtFallback(t *testing.T) {
	end := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	sched := end.Add(-time.Hour)
	m := Mission{Schedule: Schedule{EndTime: sched}}
	assert.Equal(t, sched, m.EndedAt())
	m.EndTime = end
	assert.Equal(t, end, m.EndedAt())
}

func TestCheckPatch(t *testing.T) {
	name := "renamed"
	geo := MissionPatch{Waypoints: []Waypoint{{Coordinates: [2]float64{16.3, 48.2}}}}

	assert.NoError(t, CheckPatch(Mission{Status: MissionScheduled}, geo))
	assert.NoError(t, CheckPatch(Mission{Status: MissionInProgress}, MissionPatch{Name: &name}))
	err := CheckPatch(Mission{ID: "m1", Status: MissionInProgress}, geo)
	assert.True(t, errors.Is(err, ErrGeometryLocked))
}

func TestMissionCloneIsDeep(t *testing.T) {
	m := Mission{
		AssignedDrone: &DroneRef{ID: "d1"},
		Waypoints:     []Waypoint{{Coordinates: [2]float64{1, 2}}},
		Boundary:      &Boundary{Type: "Polygon", Coordinates: [][][2]float64{{{0, 0}, {1, 1}}}},
	}
	c := m.Clone()
	c.AssignedDrone.ID = "d2"
	c.Waypoints[0].Altitude = 50
	c.Boundary.Coordinates[0][0] = [2]float64{9, 9}

	assert.Equal(t, "d1", m.AssignedDrone.ID)
	assert.Zero(t, m.Waypoints[0].Altitude)
	assert.Equal(t, [2]float64{0, 0}, m.Boundary.Coordinates[0][0])
}
