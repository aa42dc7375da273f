package fleet

import "fmt"

// MissionStatus is the lifecycle state of a mission.
type MissionStatus string

const (
	MissionScheduled  MissionStatus = "scheduled"
	MissionInProgress MissionStatus = "in-progress"
	MissionPaused     MissionStatus = "paused"
	MissionCompleted  MissionStatus = "completed"
	MissionAborted    MissionStatus = "aborted"
)

func (s MissionStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are possible.
func (s MissionStatus) IsTerminal() bool {
	return s == MissionCompleted || s == MissionAborted
}

// IsActive reports whether the mission is flying or paused mid-flight.
func (s MissionStatus) IsActive() bool {
	return s == MissionInProgress || s == MissionPaused
}

// DroneStatus is the operational state of a drone.
type DroneStatus string

const (
	DroneAvailable   DroneStatus = "available"
	DroneInMission   DroneStatus = "in-mission"
	DroneCharging    DroneStatus = "charging"
	DroneMaintenance DroneStatus = "maintenance"
	DroneInactive    DroneStatus = "inactive"
)

func (s DroneStatus) String() string { return string(s) }

// DroneStatuses lists every drone status.
var DroneStatuses = []DroneStatus{DroneAvailable, DroneInMission, DroneCharging, DroneMaintenance, DroneInactive}

// ParseDroneStatus maps a user supplied string to a DroneStatus.
func ParseDroneStatus(s string) (DroneStatus, error) {
	for _, st := range DroneStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown drone status %q", s)
}

// Action is a mission control command.
type Action string

const (
	ActionStart    Action = "start"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionComplete Action = "complete"
	ActionAbort    Action = "abort"
)

// Actions lists every control action in display order.
var Actions = []Action{ActionStart, ActionPause, ActionResume, ActionComplete, ActionAbort}

func (a Action) String() string { return string(a) }

// ParseAction maps a user supplied string to an Action.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Releases reports whether a successful action frees the assigned drone.
func (a Action) Releases() bool {
	return a == ActionComplete || a == ActionAbort
}

// Engages reports whether a successful action puts the assigned drone in the air.
func (a Action) Engages() bool {
	return a == ActionStart || a == ActionResume
}

// transitions is the complete mission state machine. Anything not listed is illegal.
var transitions = map[MissionStatus]map[Action]MissionStatus{
	MissionScheduled: {
		ActionStart: MissionInProgress,
		ActionAbort: MissionAborted,
	},
	MissionInProgress: {
		ActionPause:    MissionPaused,
		ActionComplete: MissionCompleted,
		ActionAbort:    MissionAborted,
	},
	MissionPaused: {
		ActionResume: MissionInProgress,
		ActionAbort:  MissionAborted,
	},
}

// Next returns the status reached by applying a to s.
func Next(s MissionStatus, a Action) (MissionStatus, bool) {
	to, ok := transitions[s][a]
	return to, ok
}

// CanApply reports whether a is legal from s.
func CanApply(s MissionStatus, a Action) bool {
	_, ok := Next(s, a)
	return ok
}

// Allowed returns the legal actions from s in display order.
func Allowed(s MissionStatus) []Action {
	var out []Action
	for _, a := range Actions {
		if CanApply(s, a) {
			out = append(out, a)
		}
	}
	return out
}

// Transition validates a and returns the target status or an ErrInvalidTransition error.
func Transition(missionID string, s MissionStatus, a Action) (MissionStatus, error) {
	to, ok := Next(s, a)
	if !ok {
		return s, NewError(CodeInvalidTransition, fmt.Sprintf("cannot %s mission in status %s", a, s), nil).
			With("mission_id", missionID)
	}
	return to, nil
}
