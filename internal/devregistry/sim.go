package devregistry

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"droneops-console/internal/event"
	"droneops-console/internal/fleet"
)

var defaultPosition = fleet.Position{Latitude: 37.7749, Longitude: -122.4194, Altitude: 50}

// Tick advances every in-progress mission by one simulation step: the drone
// moves, its battery drains, progress grows and finished missions complete.
// interval converts the step into an estimated time remaining.
func (r *Registry) Tick(interval time.Duration) {
	r.mu.Lock()
	now := r.now()
	var evs []event.Event
	for _, m := range sortedValues(r.missions, func(m fleet.Mission) bool {
		return m.Status == fleet.MissionInProgress
	}) {
		evs = append(evs, r.advance(m, now, interval)...)
	}
	r.mu.Unlock()
	r.emit(evs)
}

func (r *Registry) advance(m fleet.Mission, now time.Time, interval time.Duration) []event.Event {
	var evs []event.Event
	if d, ok := r.drones[m.DroneID()]; ok {
		evs = append(evs, r.fly(d, m, now)...)
	}

	m.Progress.PercentComplete = math.Min(100, m.Progress.PercentComplete+r.step)
	remaining := (100 - m.Progress.PercentComplete) / r.step
	m.Progress.EstimatedTimeRemaining = math.Round(remaining * interval.Seconds())
	m.UpdatedAt = now
	r.missions[m.ID] = m
	evs = append(evs, progressEvent(m, now))

	if m.Progress.PercentComplete >= 100 {
		_, done, err := r.transition(m, fleet.ActionComplete, "")
		if err == nil {
			evs = append(evs, done...)
		}
	}
	return evs
}

func (r *Registry) fly(d fleet.Drone, m fleet.Mission, now time.Time) []event.Event {
	pos := defaultPosition
	switch {
	case d.Telemetry.LastKnownPosition != nil:
		pos = *d.Telemetry.LastKnownPosition
	case len(m.Waypoints) > 0:
		w := m.Waypoints[0]
		pos = fleet.Position{Latitude: w.Coordinates[1], Longitude: w.Coordinates[0], Altitude: w.Altitude}
	}
	next, speed := randomWalk(pos, d.Model, r.rng)
	d.Telemetry.LastKnownPosition = &next
	d.Telemetry.Speed = speed
	d.Telemetry.BatteryLevel = math.Max(0, d.Telemetry.BatteryLevel-batteryDrain(d.Model))
	d.Telemetry.LastUpdated = now
	r.drones[d.ID] = d

	evs := []event.Event{telemetryEvent(d, m.ID, now)}
	if d.Telemetry.BatteryLevel <= lowBatteryThreshold && !r.alerted[d.ID] {
		r.alerted[d.ID] = true
		evs = append(evs, event.Event{Kind: event.DroneAlert, Time: now, Payload: event.Payload{
			MissionID: m.ID,
			DroneID:   d.ID,
			Severity:  "warning",
			Message:   fmt.Sprintf("%s battery low: %.0f%%", d.Name, d.Telemetry.BatteryLevel),
		}})
	}
	return evs
}

// randomWalk moves the drone in a pseudo-random direction, speed depends on model.
// It returns the new position and the speed used in m/s.
func randomWalk(pos fleet.Position, model string, rng *rand.Rand) (fleet.Position, float64) {
	var speedMin, speedMax float64
	switch model {
	case "quad-x":
		speedMin, speedMax = 8, 15
	case "fixed-wing":
		speedMin, speedMax = 18, 30
	case "heavy-lift":
		speedMin, speedMax = 5, 10
	default:
		speedMin, speedMax = 10, 20
	}

	heading := rng.Float64() * 2 * math.Pi
	speed := rng.Float64()*(speedMax-speedMin) + speedMin

	deltaLat := (speed * math.Cos(heading)) / 111000
	deltaLon := (speed * math.Sin(heading)) / (111000 * math.Cos(pos.Latitude*math.Pi/180))
	altDelta := rng.Float64()*2 - 1

	return fleet.Position{
		Latitude:  pos.Latitude + deltaLat,
		Longitude: pos.Longitude + deltaLon,
		Altitude:  math.Max(0, pos.Altitude+altDelta),
	}, math.Round(speed*10) / 10
}

// batteryDrain returns battery consumption per tick based on model.
func batteryDrain(model string) float64 {
	switch model {
	case "quad-x":
		return 0.5
	case "fixed-wing":
		return 0.3
	case "heavy-lift":
		return 0.8
	default:
		return 0.4
	}
}
