package viewmodel

import (
	"sync"
	"sync/atomic"
)

// Listener observes committed states.
type Listener func(State)

// Store serialises reducers over a State. Readers take lock-free snapshots.
type Store struct {
	mu   sync.Mutex
	cur  atomic.Pointer[State]
	next int
	subs map[int]Listener

	// deliver orders listener calls; delivered is the last version handed out.
	deliver   sync.Mutex
	delivered uint64
}

// NewStore returns a store holding an empty state.
func NewStore(historyLimit, alertLimit int) *Store {
	s := &Store{subs: map[int]Listener{}}
	st := NewState(historyLimit, alertLimit)
	s.cur.Store(&st)
	return s
}

// Snapshot returns the current state. Callers must not modify its maps.
func (s *Store) Snapshot() State {
	return *s.cur.Load()
}

// Update applies r, bumps the version and returns the subscription effects
// the change implies. Listeners run after the reducer lock is released and
// never see versions go backwards: a state overtaken by a newer one before
// its turn is skipped. Listeners must not call Update.
func (s *Store) Update(r Reducer) Effects {
	s.mu.Lock()
	old := *s.cur.Load()
	next := r(old)
	next.Version = old.Version + 1
	s.cur.Store(&next)
	subs := make([]Listener, 0, len(s.subs))
	for _, l := range s.subs {
		subs = append(subs, l)
	}
	s.mu.Unlock()

	s.deliver.Lock()
	if next.Version > s.delivered {
		s.delivered = next.Version
		for _, l := range subs {
			l(next)
		}
	}
	s.deliver.Unlock()
	return Diff(old, next)
}

// OnChange registers l and returns a function that removes it.
func (s *Store) OnChange(l Listener) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = l
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
