// Package event defines the push events delivered over the real-time channel
// and their JSON wire form.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"droneops-console/internal/fleet"
)

// Kind discriminates events.
type Kind string

const (
	DroneTelemetry   Kind = "drone-telemetry"
	DroneStatus      Kind = "drone-status"
	DroneAlert       Kind = "drone-alert"
	MissionStarted   Kind = "mission-started"
	MissionPaused    Kind = "mission-paused"
	MissionResumed   Kind = "mission-resumed"
	MissionCompleted Kind = "mission-completed"
	MissionAborted   Kind = "mission-aborted"
	MissionProgress  Kind = "mission-progress"
)

var knownKinds = map[Kind]bool{
	DroneTelemetry: true, DroneStatus: true, DroneAlert: true,
	MissionStarted: true, MissionPaused: true, MissionResumed: true,
	MissionCompleted: true, MissionAborted: true, MissionProgress: true,
}

// IsMission reports whether k is addressed to a mission.
func (k Kind) IsMission() bool {
	switch k {
	case MissionStarted, MissionPaused, MissionResumed, MissionCompleted, MissionAborted, MissionProgress:
		return true
	}
	return false
}

// MissionStatus returns the status a lifecycle event announces.
func (k Kind) MissionStatus() (fleet.MissionStatus, bool) {
	switch k {
	case MissionStarted, MissionResumed:
		return fleet.MissionInProgress, true
	case MissionPaused:
		return fleet.MissionPaused, true
	case MissionCompleted:
		return fleet.MissionCompleted, true
	case MissionAborted:
		return fleet.MissionAborted, true
	}
	return "", false
}

// KindFor returns the lifecycle event kind announcing status s.
func KindFor(prev, s fleet.MissionStatus) (Kind, bool) {
	switch s {
	case fleet.MissionInProgress:
		if prev == fleet.MissionPaused {
			return MissionResumed, true
		}
		return MissionStarted, true
	case fleet.MissionPaused:
		return MissionPaused, true
	case fleet.MissionCompleted:
		return MissionCompleted, true
	case fleet.MissionAborted:
		return MissionAborted, true
	}
	return "", false
}

// Payload carries every field any event kind may use. Pointer fields are
// optional; nil means "not part of this update".
type Payload struct {
	MissionID string `json:"missionId,omitempty"`
	DroneID   string `json:"droneId,omitempty"`

	BatteryLevel *float64        `json:"batteryLevel,omitempty"`
	Position     *fleet.Position `json:"position,omitempty"`
	Speed        *float64        `json:"speed,omitempty"`
	LastUpdated  time.Time       `json:"lastUpdated,omitzero"`

	Status string `json:"status,omitempty"`

	PercentComplete        *float64  `json:"percentComplete,omitempty"`
	StartedAt              time.Time `json:"startedAt,omitzero"`
	EstimatedTimeRemaining *float64  `json:"estimatedTimeRemaining,omitempty"`
	EndTime                time.Time `json:"endTime,omitzero"`
	Reason                 string    `json:"reason,omitempty"`

	Severity string `json:"severity,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Event is one push notification from the registry.
type Event struct {
	Kind Kind
	Time time.Time
	Payload
}

// Topic is the subscription the event is routed through. Alerts go to the
// mission room when they name a mission, otherwise to the drone topic.
func (e Event) Topic() Topic {
	switch {
	case e.Kind.IsMission():
		return MissionTopic(e.MissionID)
	case e.Kind == DroneAlert && e.MissionID != "":
		return MissionTopic(e.MissionID)
	default:
		return DroneTopic(e.DroneID)
	}
}

// Envelope is the JSON frame exchanged over the channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	TS    time.Time       `json:"ts,omitzero"`
}

var (
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrMissingSubject = errors.New("event has no subject id")
)

// Decode parses one wire frame.
func Decode(b []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	return FromEnvelope(env)
}

// FromEnvelope validates env and unpacks its payload.
func FromEnvelope(env Envelope) (Event, error) {
	k := Kind(env.Event)
	if !knownKinds[k] {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Event)
	}
	ev := Event{Kind: k, Time: env.TS}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &ev.Payload); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", k, err)
		}
	}
	if err := ev.validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (e Event) validate() error {
	switch {
	case e.Kind.IsMission() && e.MissionID == "":
		return fmt.Errorf("%w: %s needs missionId", ErrMissingSubject, e.Kind)
	case e.Kind == DroneAlert && e.MissionID == "" && e.DroneID == "":
		return fmt.Errorf("%w: %s needs missionId or droneId", ErrMissingSubject, e.Kind)
	case (e.Kind == DroneTelemetry || e.Kind == DroneStatus) && e.DroneID == "":
		return fmt.Errorf("%w: %s needs droneId", ErrMissingSubject, e.Kind)
	}
	return nil
}

// Envelope packs e for the wire.
func (e Event) Envelope() (Envelope, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: string(e.Kind), Data: data, TS: e.Time}, nil
}

// Encode returns the wire frame for e.
func Encode(e Event) ([]byte, error) {
	env, err := e.Envelope()
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Float returns a pointer to v, for building partial payloads.
func Float(v float64) *float64 { return &v }
