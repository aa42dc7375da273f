// Package command issues mission control actions against the registry with
// an optimistic pending phase in the view-model.
package command

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"droneops-console/internal/fleet"
	"droneops-console/internal/logging"
	"droneops-console/internal/viewmodel"
)

// Registry executes a control action and returns the updated mission.
type Registry interface {
	Command(ctx context.Context, missionID string, a fleet.Action, reason string) (fleet.Mission, error)
}

// Request is one operator command.
type Request struct {
	MissionID string       `validate:"required"`
	Action    fleet.Action `validate:"required,oneof=start pause resume complete abort"`
	Reason    string       `validate:"required_if=Action abort,max=500"`
}

// Notice is a user-visible outcome of a failed command.
type Notice struct {
	MissionID string
	Action    fleet.Action
	Err       error
	At        time.Time
}

func (n Notice) String() string {
	return fmt.Sprintf("%s %s failed: %v", n.Action, n.MissionID, n.Err)
}

// Notifier receives failure notices.
type Notifier func(Notice)

// EffectRunner executes the subscription changes a store update implies.
type EffectRunner func(viewmodel.Effects)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithNotifier(n Notifier) Option         { return func(d *Dispatcher) { d.notify = n } }
func WithEffectRunner(r EffectRunner) Option { return func(d *Dispatcher) { d.effects = r } }
func WithLogger(l *slog.Logger) Option       { return func(d *Dispatcher) { d.log = l } }
func WithClock(now func() time.Time) Option  { return func(d *Dispatcher) { d.now = now } }

// WithIDs overrides command id generation.
func WithIDs(gen func() string) Option { return func(d *Dispatcher) { d.newID = gen } }

// Dispatcher serialises commands per mission. Commands for different missions
// run concurrently.
type Dispatcher struct {
	reg      Registry
	store    *viewmodel.Store
	validate *validator.Validate
	notify   Notifier
	effects  EffectRunner
	log      *slog.Logger
	now      func() time.Time
	newID    func() string

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New returns a dispatcher writing into store.
func New(reg Registry, store *viewmodel.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:      reg,
		store:    store,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
		inflight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	if d.log == nil {
		d.log = logging.FromContext(context.Background())
	}
	d.log = d.log.With("component", "command")
	return d
}

// InFlight reports whether a command for missionID has not finished yet.
func (d *Dispatcher) InFlight(missionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[missionID]
	return ok
}

// Dispatch validates req, records a pending entry, calls the registry and
// then confirms or rolls back. The returned mission is the registry's record.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (fleet.Mission, error) {
	if err := d.check(req); err != nil {
		return fleet.Mission{}, err
	}
	if !d.acquire(req.MissionID) {
		return fleet.Mission{}, d.fail(req, fleet.NewError(fleet.CodeCommandInProgress,
			"another command for this mission has not finished", nil).With("mission_id", req.MissionID))
	}
	defer d.release(req.MissionID)

	m, ok := d.store.Snapshot().Mission(req.MissionID)
	if !ok {
		return fleet.Mission{}, d.fail(req, fleet.NewError(fleet.CodeNotFound, "unknown mission", nil).
			With("mission_id", req.MissionID))
	}
	target, err := fleet.Transition(m.ID, m.Status, req.Action)
	if err != nil {
		return fleet.Mission{}, d.fail(req, err)
	}

	pc := viewmodel.PendingCommand{
		ID:       d.newID(),
		Action:   req.Action,
		From:     m.Status,
		Target:   target,
		IssuedAt: d.now(),
	}
	d.update(viewmodel.BeginCommand(m.ID, pc))
	d.log.Debug("command pending", "mission_id", m.ID, "action", req.Action, "command_id", pc.ID)

	rec, err := d.reg.Command(ctx, m.ID, req.Action, req.Reason)
	if err != nil {
		d.update(viewmodel.RollbackCommand(m.ID, pc.ID))
		return fleet.Mission{}, d.fail(req, err)
	}
	if rec.ID == "" {
		rec = m.Clone()
		rec.Status = target
	}

	r := viewmodel.ConfirmCommand(m.ID, pc.ID, rec, d.now())
	if id := cmp.Or(rec.DroneID(), m.DroneID()); id != "" {
		switch {
		case req.Action.Releases():
			r = viewmodel.Chain(r, viewmodel.ReleaseDrone(id))
		case req.Action.Engages():
			r = viewmodel.Chain(r, viewmodel.EngageDrone(id))
		}
	}
	d.update(r)
	d.log.Info("command confirmed", "mission_id", m.ID, "action", req.Action, "status", rec.Status)
	return rec, nil
}

func (d *Dispatcher) check(req Request) error {
	err := d.validate.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid command: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required", "required_if":
			msgs = append(msgs, strings.ToLower(e.Field())+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s] (got: %v)", strings.ToLower(e.Field()), e.Param(), e.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(e.Field()), e.Tag()))
		}
	}
	return fmt.Errorf("invalid command: %s", strings.Join(msgs, "; "))
}

func (d *Dispatcher) acquire(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[id]; busy {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

func (d *Dispatcher) update(r viewmodel.Reducer) {
	eff := d.store.Update(r)
	if d.effects != nil && !eff.Empty() {
		d.effects(eff)
	}
}

func (d *Dispatcher) fail(req Request, err error) error {
	d.log.Warn("command failed", "mission_id", req.MissionID, "action", req.Action, "code", fleet.CodeOf(err), "err", err)
	if d.notify != nil {
		d.notify(Notice{MissionID: req.MissionID, Action: req.Action, Err: err, At: d.now()})
	}
	return err
}
