// Package viewmodel keeps the reconciled, read-optimised picture of missions
// and drones. State values are immutable; every change goes through a Reducer
// that returns a new State.
package viewmodel

import (
	"maps"
	"slices"
	"time"

	"droneops-console/internal/event"
	"droneops-console/internal/fleet"
)

const (
	DefaultHistoryLimit = 5
	DefaultAlertLimit   = 50
)

// PendingCommand is an issued but unconfirmed control action.
type PendingCommand struct {
	ID       string
	Action   fleet.Action
	From     fleet.MissionStatus
	Target   fleet.MissionStatus
	IssuedAt time.Time
}

// Alert is a warning pushed by the registry.
type Alert struct {
	Time      time.Time
	MissionID string
	DroneID   string
	Severity  string
	Message   string
}

// State is one immutable snapshot of the view. Missions holds only
// non-terminal missions; terminal ones live in History.
type State struct {
	Missions map[string]fleet.Mission
	History  []fleet.Mission
	Drones   map[string]fleet.Drone
	Pending  map[string]PendingCommand
	Alerts   []Alert
	LoadedAt time.Time
	Version  uint64

	HistoryLimit int
	AlertLimit   int
}

// NewState returns an empty state with the given bounds. Non-positive limits use the defaults.
func NewState(historyLimit, alertLimit int) State {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if alertLimit <= 0 {
		alertLimit = DefaultAlertLimit
	}
	return State{
		Missions:     map[string]fleet.Mission{},
		Drones:       map[string]fleet.Drone{},
		Pending:      map[string]PendingCommand{},
		HistoryLimit: historyLimit,
		AlertLimit:   alertLimit,
	}
}

// Mission looks a mission up in the working set, then in history.
func (s State) Mission(id string) (fleet.Mission, bool) {
	if m, ok := s.Missions[id]; ok {
		return m, true
	}
	for _, m := range s.History {
		if m.ID == id {
			return m, true
		}
	}
	return fleet.Mission{}, false
}

// Drone looks a drone up.
func (s State) Drone(id string) (fleet.Drone, bool) {
	d, ok := s.Drones[id]
	return d, ok
}

func (s State) withMission(m fleet.Mission) State {
	s.Missions = maps.Clone(s.Missions)
	s.Missions[m.ID] = m
	return s
}

func (s State) withoutMission(id string) State {
	s.Missions = maps.Clone(s.Missions)
	delete(s.Missions, id)
	return s
}

func (s State) withDrone(d fleet.Drone) State {
	s.Drones = maps.Clone(s.Drones)
	s.Drones[d.ID] = d
	return s
}

func (s State) withPending(id string, pc PendingCommand) State {
	s.Pending = maps.Clone(s.Pending)
	s.Pending[id] = pc
	return s
}

func (s State) withoutPending(id string) State {
	s.Pending = maps.Clone(s.Pending)
	delete(s.Pending, id)
	return s
}

// withHistory inserts m, replacing any entry with the same id, keeps the list
// ordered by end time descending and trims it to HistoryLimit.
func (s State) withHistory(m fleet.Mission) State {
	h := make([]fleet.Mission, 0, len(s.History)+1)
	for _, old := range s.History {
		if old.ID != m.ID {
			h = append(h, old)
		}
	}
	h = append(h, m)
	s.History = sortHistory(h, s.HistoryLimit)
	return s
}

func sortHistory(h []fleet.Mission, limit int) []fleet.Mission {
	slices.SortStableFunc(h, func(a, b fleet.Mission) int {
		return b.EndedAt().Compare(a.EndedAt())
	})
	if limit > 0 && len(h) > limit {
		h = h[:limit]
	}
	return h
}

// DesiredTopics is the subscription set the state calls for: every
// non-terminal mission's room and the drone of every active mission.
func DesiredTopics(s State) map[event.Topic]struct{} {
	out := make(map[event.Topic]struct{}, len(s.Missions)*2)
	for id, m := range s.Missions {
		out[event.MissionTopic(id)] = struct{}{}
		if m.Status.IsActive() && m.DroneID() != "" {
			out[event.DroneTopic(m.DroneID())] = struct{}{}
		}
	}
	return out
}

// Effects are the subscription changes a state transition implies.
type Effects struct {
	Subscribe   []event.Topic
	Unsubscribe []event.Topic
}

// Empty reports whether there is nothing to do.
func (e Effects) Empty() bool { return len(e.Subscribe) == 0 && len(e.Unsubscribe) == 0 }

// Diff computes the effects of moving from old to next.
func Diff(old, next State) Effects {
	before, after := DesiredTopics(old), DesiredTopics(next)
	var e Effects
	for t := range after {
		if _, ok := before[t]; !ok {
			e.Subscribe = append(e.Subscribe, t)
		}
	}
	for t := range before {
		if _, ok := after[t]; !ok {
			e.Unsubscribe = append(e.Unsubscribe, t)
		}
	}
	slices.Sort(e.Subscribe)
	slices.Sort(e.Unsubscribe)
	return e
}
