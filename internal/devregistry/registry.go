// Package devregistry is an in-process stand-in for the fleet registry: the
// REST surface, the event channel and a small flight simulator.
package devregistry

import (
	"cmp"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"droneops-console/internal/event"
	"droneops-console/internal/fixture"
	"droneops-console/internal/fleet"
)

// lowBatteryThreshold triggers a single alert per flight.
const lowBatteryThreshold = 20

type account struct {
	user fleet.User
	hash []byte
}

// Registry holds the fleet. All methods are safe for concurrent use.
// Events produced by a mutation are published after the lock is released.
type Registry struct {
	mu       sync.Mutex
	org      string
	accounts map[string]account // by email
	drones   map[string]fleet.Drone
	missions map[string]fleet.Mission
	reports  map[string]fleet.Report
	alerted  map[string]bool
	step     float64

	rng     *rand.Rand
	now     func() time.Time
	publish func(event.Event)
}

// NewRegistry seeds a registry from f.
func NewRegistry(f *fixture.Fixture) *Registry {
	r := &Registry{
		org:      f.Organization,
		accounts: make(map[string]account),
		drones:   make(map[string]fleet.Drone),
		missions: make(map[string]fleet.Mission),
		reports:  make(map[string]fleet.Report),
		alerted:  make(map[string]bool),
		step:     2.5,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      func() time.Time { return time.Now().UTC() },
		publish:  func(event.Event) {},
	}
	for _, u := range f.Users {
		id := cmp.Or(u.ID, uuid.NewString())
		// Fixture validation bounds the password length, so hashing cannot fail.
		hash, _ := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		r.accounts[u.Email] = account{
			user: fleet.User{ID: id, Name: u.Name, Email: u.Email, Role: cmp.Or(u.Role, "operator"), Organization: f.Organization},
			hash: hash,
		}
	}
	for _, d := range f.FleetDrones() {
		r.drones[d.ID] = d
	}
	for _, m := range f.FleetMissions() {
		r.missions[m.ID] = m
	}
	for _, rep := range f.FleetReports() {
		r.reports[rep.ID] = rep
	}
	return r
}

func (r *Registry) emit(evs []event.Event) {
	for _, ev := range evs {
		r.publish(ev)
	}
}

func notFound(kind, id string) error {
	return fleet.NewError(fleet.CodeNotFound, kind+" not found", nil).With("id", id)
}

func rejected(msg string) error {
	return fleet.NewError(fleet.CodeRejected, msg, nil)
}

// Authenticate checks an email and password.
func (r *Registry) Authenticate(email, password string) (fleet.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[email]
	if !ok || bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		return fleet.User{}, fleet.NewError(fleet.CodeAuth, "invalid email or password", nil)
	}
	return a.user, nil
}

// Register creates an operator account.
func (r *Registry) Register(reg fleet.Registration) (fleet.User, error) {
	if reg.Name == "" || reg.Email == "" || reg.Password == "" {
		return fleet.User{}, rejected("name, email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return fleet.User{}, rejected(err.Error())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[reg.Email]; exists {
		return fleet.User{}, rejected("email already registered")
	}
	u := fleet.User{ID: uuid.NewString(), Name: reg.Name, Email: reg.Email, Role: "operator", Organization: cmp.Or(reg.Organization, r.org)}
	r.accounts[reg.Email] = account{user: u, hash: hash}
	return u, nil
}

// User looks an account up by id.
func (r *Registry) User(id string) (fleet.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.user.ID == id {
			return a.user, nil
		}
	}
	return fleet.User{}, notFound("user", id)
}

func sortedValues[T any](m map[string]T, keep func(T) bool) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if keep == nil || keep(m[k]) {
			out = append(out, m[k])
		}
	}
	return out
}

// Missions lists missions, optionally filtered by status.
func (r *Registry) Missions(status string) []fleet.Mission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedValues(r.missions, func(m fleet.Mission) bool {
		return status == "" || string(m.Status) == status
	})
}

// Mission returns one mission.
func (r *Registry) Mission(id string) (fleet.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.missions[id]
	if !ok {
		return fleet.Mission{}, notFound("mission", id)
	}
	return m, nil
}

// CreateMission stores a new scheduled mission.
func (r *Registry) CreateMission(m fleet.Mission) (fleet.Mission, error) {
	if m.Name == "" {
		return fleet.Mission{}, rejected("mission name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id := m.DroneID(); id != "" {
		d, ok := r.drones[id]
		if !ok {
			return fleet.Mission{}, notFound("drone", id)
		}
		m.AssignedDrone = &fleet.DroneRef{ID: d.ID, Name: d.Name}
	}
	m.ID = uuid.NewString()
	m.Status = fleet.MissionScheduled
	m.Progress = fleet.Progress{}
	m.EndTime = time.Time{}
	m.UpdatedAt = r.now()
	r.missions[m.ID] = m
	return m, nil
}

// UpdateMission applies a partial update. Geometry is locked once the mission started.
func (r *Registry) UpdateMission(id string, p fleet.MissionPatch) (fleet.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.missions[id]
	if !ok {
		return fleet.Mission{}, notFound("mission", id)
	}
	if err := fleet.CheckPatch(m, p); err != nil {
		return fleet.Mission{}, err
	}
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.Schedule != nil {
		m.Schedule = *p.Schedule
	}
	if p.AssignedDrone != nil {
		if m.Status != fleet.MissionScheduled {
			return fleet.Mission{}, rejected("drone can only be reassigned before the mission starts")
		}
		d, ok := r.drones[*p.AssignedDrone]
		if !ok {
			return fleet.Mission{}, notFound("drone", *p.AssignedDrone)
		}
		m.AssignedDrone = &fleet.DroneRef{ID: d.ID, Name: d.Name}
	}
	if p.Waypoints != nil {
		m.Waypoints = slices.Clone(p.Waypoints)
	}
	if p.Boundary != nil {
		b := *p.Boundary
		m.Boundary = &b
	}
	m.UpdatedAt = r.now()
	r.missions[id] = m
	return m, nil
}

// DeleteMission removes a mission that is not flying.
func (r *Registry) DeleteMission(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.missions[id]
	if !ok {
		return notFound("mission", id)
	}
	if m.Status.IsActive() {
		return rejected("cannot delete an active mission")
	}
	delete(r.missions, id)
	return nil
}

// UpdateProgress records reported progress on an active mission.
func (r *Registry) UpdateProgress(id string, p fleet.ProgressUpdate) (fleet.Mission, error) {
	r.mu.Lock()
	m, ok := r.missions[id]
	if !ok {
		r.mu.Unlock()
		return fleet.Mission{}, notFound("mission", id)
	}
	if !m.Status.IsActive() {
		r.mu.Unlock()
		return fleet.Mission{}, rejected("progress can only be reported for active missions")
	}
	m.Progress.PercentComplete = min(max(p.PercentComplete, 0), 100)
	m.Progress.EstimatedTimeRemaining = p.EstimatedTimeRemaining
	m.UpdatedAt = r.now()
	r.missions[id] = m
	evs := []event.Event{progressEvent(m, r.now())}
	r.mu.Unlock()
	r.emit(evs)
	return m, nil
}

// Command applies a control action with the registry's state machine.
func (r *Registry) Command(id string, a fleet.Action, reason string) (fleet.Mission, error) {
	r.mu.Lock()
	m, ok := r.missions[id]
	if !ok {
		r.mu.Unlock()
		return fleet.Mission{}, notFound("mission", id)
	}
	if a == fleet.ActionStart {
		if err := r.checkLaunch(m); err != nil {
			r.mu.Unlock()
			return fleet.Mission{}, err
		}
	}
	m, evs, err := r.transition(m, a, reason)
	r.mu.Unlock()
	if err != nil {
		return fleet.Mission{}, err
	}
	r.emit(evs)
	return m, nil
}

func (r *Registry) checkLaunch(m fleet.Mission) error {
	id := m.DroneID()
	if id == "" {
		return rejected("mission has no assigned drone")
	}
	d, ok := r.drones[id]
	if !ok {
		return notFound("drone", id)
	}
	if d.Status != fleet.DroneAvailable && d.Status != fleet.DroneInMission {
		return rejected(fmt.Sprintf("drone %s is %s", d.Name, d.Status))
	}
	for _, other := range r.missions {
		if other.ID != m.ID && other.Status.IsActive() && other.DroneID() == id {
			return rejected(fmt.Sprintf("drone %s is flying mission %s", d.Name, other.Name))
		}
	}
	return nil
}

// transition mutates state for action a and returns the events to publish. Callers hold mu.
func (r *Registry) transition(m fleet.Mission, a fleet.Action, reason string) (fleet.Mission, []event.Event, error) {
	prev := m.Status
	next, err := fleet.Transition(m.ID, prev, a)
	if err != nil {
		return fleet.Mission{}, nil, err
	}
	now := r.now()
	m.Status = next
	m.UpdatedAt = now

	payload := event.Payload{MissionID: m.ID, DroneID: m.DroneID(), Status: string(next)}
	var evs []event.Event
	switch a {
	case fleet.ActionStart:
		m.Progress.StartedAt = now
		payload.StartedAt = now
		evs = append(evs, r.setDroneStatus(m.DroneID(), fleet.DroneInMission, now)...)
		delete(r.alerted, m.DroneID())
	case fleet.ActionComplete:
		m.Progress.PercentComplete = 100
		m.Progress.EstimatedTimeRemaining = 0
		m.EndTime = now
		payload.EndTime = now
	case fleet.ActionAbort:
		m.EndTime = now
		payload.EndTime = now
		payload.Reason = reason
	}
	r.missions[m.ID] = m

	kind, _ := event.KindFor(prev, next)
	evs = append([]event.Event{{Kind: kind, Time: now, Payload: payload}}, evs...)
	if a.Releases() {
		evs = append(evs, r.setDroneStatus(m.DroneID(), fleet.DroneAvailable, now)...)
	}
	return m, evs, nil
}

func (r *Registry) setDroneStatus(id string, s fleet.DroneStatus, now time.Time) []event.Event {
	d, ok := r.drones[id]
	if !ok || d.Status == s {
		return nil
	}
	d.Status = s
	d.UpdatedAt = now
	r.drones[id] = d
	return []event.Event{{Kind: event.DroneStatus, Time: now, Payload: event.Payload{DroneID: id, Status: string(s)}}}
}

// Drones lists drones, optionally filtered by status.
func (r *Registry) Drones(status string) []fleet.Drone {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedValues(r.drones, func(d fleet.Drone) bool {
		return status == "" || string(d.Status) == status
	})
}

// Drone returns one drone.
func (r *Registry) Drone(id string) (fleet.Drone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drones[id]
	if !ok {
		return fleet.Drone{}, notFound("drone", id)
	}
	return d, nil
}

// CreateDrone registers an aircraft.
func (r *Registry) CreateDrone(d fleet.Drone) (fleet.Drone, error) {
	if d.Name == "" {
		return fleet.Drone{}, rejected("drone name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d.ID = uuid.NewString()
	d.Status = cmp.Or(d.Status, fleet.DroneAvailable)
	if d.Telemetry.BatteryLevel == 0 {
		d.Telemetry.BatteryLevel = 100
	}
	d.UpdatedAt = r.now()
	r.drones[d.ID] = d
	return d, nil
}

// DroneUpdate is a partial drone update.
type DroneUpdate struct {
	Name   *string            `json:"name,omitempty"`
	Model  *string            `json:"model,omitempty"`
	Status *fleet.DroneStatus `json:"status,omitempty"`
}

// UpdateDrone applies u.
func (r *Registry) UpdateDrone(id string, u DroneUpdate) (fleet.Drone, error) {
	r.mu.Lock()
	d, ok := r.drones[id]
	if !ok {
		r.mu.Unlock()
		return fleet.Drone{}, notFound("drone", id)
	}
	if u.Name != nil {
		d.Name = *u.Name
	}
	if u.Model != nil {
		d.Model = *u.Model
	}
	var evs []event.Event
	now := r.now()
	d.UpdatedAt = now
	r.drones[id] = d
	if u.Status != nil {
		evs = r.setDroneStatus(id, *u.Status, now)
		d = r.drones[id]
	}
	r.mu.Unlock()
	r.emit(evs)
	return d, nil
}

// DeleteDrone removes a drone that is not assigned to an active mission.
func (r *Registry) DeleteDrone(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drones[id]; !ok {
		return notFound("drone", id)
	}
	for _, m := range r.missions {
		if m.Status.IsActive() && m.DroneID() == id {
			return rejected("drone is flying mission " + m.Name)
		}
	}
	delete(r.drones, id)
	return nil
}

// UpdateTelemetry stores a sample and publishes it.
func (r *Registry) UpdateTelemetry(id string, t fleet.Telemetry) (fleet.Drone, error) {
	r.mu.Lock()
	d, ok := r.drones[id]
	if !ok {
		r.mu.Unlock()
		return fleet.Drone{}, notFound("drone", id)
	}
	now := r.now()
	d.Telemetry.BatteryLevel = t.BatteryLevel
	if t.LastKnownPosition != nil {
		p := *t.LastKnownPosition
		d.Telemetry.LastKnownPosition = &p
	}
	d.Telemetry.Speed = t.Speed
	d.Telemetry.LastUpdated = now
	r.drones[id] = d
	ev := telemetryEvent(d, r.activeMission(id), now)
	r.mu.Unlock()
	r.emit([]event.Event{ev})
	return d, nil
}

func (r *Registry) activeMission(droneID string) string {
	for _, m := range r.missions {
		if m.Status.IsActive() && m.DroneID() == droneID {
			return m.ID
		}
	}
	return ""
}

// Reports lists reports.
func (r *Registry) Reports() []fleet.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedValues(r.reports, nil)
}

// Report returns one report.
func (r *Registry) Report(id string) (fleet.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[id]
	if !ok {
		return fleet.Report{}, notFound("report", id)
	}
	return rep, nil
}

// CreateReport stores a report for an existing mission.
func (r *Registry) CreateReport(rep fleet.Report) (fleet.Report, error) {
	if rep.Title == "" {
		return fleet.Report{}, rejected("report title is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rep.Mission != nil {
		m, ok := r.missions[rep.Mission.ID]
		if !ok {
			return fleet.Report{}, notFound("mission", rep.Mission.ID)
		}
		rep.Mission = &fleet.MissionRef{ID: m.ID, Name: m.Name, MissionType: m.MissionType}
	}
	rep.ID = uuid.NewString()
	rep.Status = cmp.Or(rep.Status, "draft")
	rep.CreatedAt = r.now()
	r.reports[rep.ID] = rep
	return rep, nil
}

// DeleteReport removes a report.
func (r *Registry) DeleteReport(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[id]; !ok {
		return notFound("report", id)
	}
	delete(r.reports, id)
	return nil
}

// Stats aggregates organisation counters. Flight time is in hours.
func (r *Registry) Stats() fleet.OrganizationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := fleet.OrganizationStats{
		TotalMissions: len(r.missions),
		TotalDrones:   len(r.drones),
		TotalReports:  len(r.reports),
	}
	for _, d := range r.drones {
		if d.Status == fleet.DroneInMission {
			s.ActiveDrones++
		}
	}
	for _, m := range r.missions {
		if m.Status == fleet.MissionCompleted && !m.Progress.StartedAt.IsZero() && !m.EndTime.IsZero() {
			s.TotalFlightTime += m.EndTime.Sub(m.Progress.StartedAt).Hours()
		}
	}
	return s
}

func telemetryEvent(d fleet.Drone, missionID string, now time.Time) event.Event {
	p := event.Payload{
		DroneID:      d.ID,
		MissionID:    missionID,
		BatteryLevel: event.Float(d.Telemetry.BatteryLevel),
		Speed:        event.Float(d.Telemetry.Speed),
		LastUpdated:  d.Telemetry.LastUpdated,
	}
	if d.Telemetry.LastKnownPosition != nil {
		pos := *d.Telemetry.LastKnownPosition
		p.Position = &pos
	}
	return event.Event{Kind: event.DroneTelemetry, Time: now, Payload: p}
}

func progressEvent(m fleet.Mission, now time.Time) event.Event {
	return event.Event{Kind: event.MissionProgress, Time: now, Payload: event.Payload{
		MissionID:              m.ID,
		DroneID:                m.DroneID(),
		PercentComplete:        event.Float(m.Progress.PercentComplete),
		EstimatedTimeRemaining: event.Float(m.Progress.EstimatedTimeRemaining),
	}}
}
