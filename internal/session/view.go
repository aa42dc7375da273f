package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"droneops-console/internal/api"
	"droneops-console/internal/fleet"
	"droneops-console/internal/recorder"
	"droneops-console/internal/viewmodel"
)

// ErrViewClosed is returned by Refresh after Close.
var ErrViewClosed = errors.New("session: view closed")

// View is a mounted mission screen. Opening it loads a snapshot and
// subscribes the topics the snapshot calls for; closing it drops them.
type View struct {
	s *Session

	mu     sync.Mutex
	closed bool
}

// OpenView mounts a view, replacing any previous one, and loads the first snapshot.
func (s *Session) OpenView(ctx context.Context) (*View, error) {
	s.closeView()
	v := &View{s: s}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	if err := v.Refresh(ctx); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

// Refresh reloads missions and drones and replaces the cached picture.
// A result that arrives after Close is discarded.
func (v *View) Refresh(ctx context.Context) error {
	if v.isClosed() {
		return ErrViewClosed
	}
	var (
		missions []fleet.Mission
		drones   []fleet.Drone
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		missions, err = v.s.api.ListMissions(gctx, api.ListParams{})
		return err
	})
	g.Go(func() error {
		var err error
		drones, err = v.s.api.ListDrones(gctx, api.ListParams{})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	at := time.Now().UTC()
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		v.s.log.Debug("discarding snapshot for closed view")
		return ErrViewClosed
	}
	eff := v.s.store.Update(viewmodel.ReplaceSnapshot(missions, drones, at))
	v.mu.Unlock()

	v.s.apply(eff)
	v.s.log.Debug("snapshot loaded", "missions", len(missions), "drones", len(drones))
	if sw, ok := v.s.rec.(recorder.SnapshotWriter); ok {
		if err := sw.WriteSnapshot(recorder.Snapshot{At: at, Missions: missions, Drones: drones}); err != nil {
			v.s.log.Warn("record snapshot", "err", err)
		}
	}
	return nil
}

// Close unsubscribes the view's topics and clears the cached picture. It is idempotent.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	eff := v.s.store.Update(viewmodel.Reset())
	v.mu.Unlock()
	v.s.apply(eff)

	v.s.mu.Lock()
	if v.s.view == v {
		v.s.view = nil
	}
	v.s.mu.Unlock()
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
