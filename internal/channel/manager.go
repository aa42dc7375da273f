// Package channel maintains the authenticated real-time connection to the
// registry and routes its push events to a single dispatcher.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"droneops-console/internal/event"
	"droneops-console/internal/fleet"
	"droneops-console/internal/logging"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Conn is the subset of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a connection.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

// WebsocketDialer adapts a gorilla dialer. A 401 handshake maps to fleet.ErrAuth.
func WebsocketDialer(d *websocket.Dialer) Dialer {
	return func(ctx context.Context, url string, header http.Header) (Conn, error) {
		c, resp, err := d.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return nil, fleet.NewError(fleet.CodeAuth, "event channel rejected token", err)
			}
			return nil, fleet.NewError(fleet.CodeNetwork, "dial "+url, err)
		}
		return c, nil
	}
}

// Handler receives every delivered event, one at a time, in arrival order.
type Handler func(event.Event)

// StateListener observes state changes. err explains drops and give-ups.
type StateListener func(s State, err error)

// Options configure a Manager.
type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	Dial              Dialer
	Logger            *slog.Logger
	OnState           StateListener
}

// Manager owns at most one connection. Subscriptions outlive connections and
// are replayed to the server after every (re)connect.
type Manager struct {
	opts    Options
	handler Handler
	log     *slog.Logger

	mu     sync.Mutex
	state  State
	topics map[event.Topic]struct{}
	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}

	writeMu   sync.Mutex
	deliverMu sync.Mutex
}

// New builds a Manager. Zero options fall back to 5 attempts at 1s and the
// default gorilla dialer.
func New(opts Options, h Handler) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.ReconnectAttempts < 0 {
		opts.ReconnectAttempts = 0
	}
	if opts.Dial == nil {
		opts.Dial = WebsocketDialer(websocket.DefaultDialer)
	}
	l := opts.Logger
	if l == nil {
		l = logging.FromContext(context.Background())
	}
	return &Manager{
		opts:    opts,
		handler: h,
		log:     l.With("component", "channel"),
		topics:  make(map[event.Topic]struct{}),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Topics returns the active subscriptions, sorted.
func (m *Manager) Topics() []event.Topic {
	m.mu.Lock()
	out := make([]event.Topic, 0, len(m.topics))
	for t := range m.topics {
		out = append(out, t)
	}
	m.mu.Unlock()
	slices.Sort(out)
	return out
}

// Subscribed reports whether t is active.
func (m *Manager) Subscribed(t event.Topic) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.topics[t]
	return ok
}

// Connect opens the channel in the background, replacing any existing
// connection. Failures are reported through the state listener, not returned.
func (m *Manager) Connect(token string) error {
	if token == "" {
		return fleet.NewError(fleet.CodeAuth, "event channel needs a bearer token", nil)
	}
	m.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.state = Connecting
	m.mu.Unlock()
	m.notify(Connecting, nil)

	go m.run(ctx, token, done)
	return nil
}

// Disconnect closes the connection and stops reconnecting. It is idempotent and
// returns only after the reader has stopped, so no event is delivered afterwards.
// It must not be called from inside the Handler.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, conn, done := m.cancel, m.conn, m.done
	if cancel == nil {
		m.mu.Unlock()
		return
	}
	cancel()
	m.cancel, m.conn, m.done = nil, nil, nil
	prev := m.state
	m.state = Disconnected
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	<-done
	if prev != Disconnected {
		m.notify(Disconnected, nil)
	}
}

// Subscribe adds t. Subscribing twice is a no-op.
func (m *Manager) Subscribe(t event.Topic) error {
	ctl, err := event.SubscribeControl(t)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.topics[t]; ok {
		m.mu.Unlock()
		return nil
	}
	m.topics[t] = struct{}{}
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		m.send(conn, ctl)
	}
	return nil
}

// Unsubscribe removes t. Unknown topics are a no-op. Once it returns, no event
// for t that has not already started delivery reaches the Handler.
func (m *Manager) Unsubscribe(t event.Topic) error {
	ctl, err := event.UnsubscribeControl(t)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.topics[t]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.topics, t)
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		m.send(conn, ctl)
	}
	return nil
}

func (m *Manager) run(ctx context.Context, token string, done chan struct{}) {
	defer close(done)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	failures := 0
	for {
		conn, err := m.opts.Dial(ctx, m.opts.URL, header)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err == nil {
			failures = 0
			if !m.attach(ctx, conn) {
				_ = conn.Close()
				return
			}
			err = m.readLoop(ctx, conn)
			m.detach(conn)
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("event channel dropped", "err", err)
		} else {
			m.log.Warn("event channel dial failed", "url", m.opts.URL, "err", err)
		}

		if errors.Is(err, fleet.ErrAuth) {
			m.setState(ctx, Disconnected, err)
			return
		}
		if failures >= m.opts.ReconnectAttempts {
			m.setState(ctx, Disconnected, fleet.NewError(fleet.CodeChannelDisconnected,
				fmt.Sprintf("gave up after %d reconnection attempts", failures), err))
			return
		}
		failures++
		m.setState(ctx, Reconnecting, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.ReconnectDelay):
		}
	}
}

// attach publishes conn as current and replays subscriptions.
func (m *Manager) attach(ctx context.Context, conn Conn) bool {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	m.state = Connected
	topics := make([]event.Topic, 0, len(m.topics))
	for t := range m.topics {
		topics = append(topics, t)
	}
	m.mu.Unlock()

	slices.Sort(topics)
	for _, t := range topics {
		if ctl, err := event.SubscribeControl(t); err == nil {
			m.send(conn, ctl)
		}
	}
	m.log.Info("event channel connected", "topics", len(topics))
	m.notify(Connected, nil)
	return true
}

func (m *Manager) detach(conn Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := event.Decode(data)
		if err != nil {
			m.log.Warn("dropping malformed event", "err", err)
			continue
		}
		m.deliver(ctx, ev)
	}
}

func (m *Manager) deliver(ctx context.Context, ev event.Event) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	topic := ev.Topic()
	if !m.Subscribed(topic) {
		m.log.Debug("dropping event for inactive topic", "kind", ev.Kind, "topic", topic)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("event handler panicked", "kind", ev.Kind, "topic", topic, "panic", r)
		}
	}()
	if m.handler != nil {
		m.handler(ev)
	}
}

func (m *Manager) send(conn Conn, ctl event.Control) {
	b, err := json.Marshal(ctl)
	if err != nil {
		m.log.Error("encode control message", "err", err)
		return
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		m.log.Warn("send control message failed", "event", ctl.Event, "id", ctl.Data, "err", err)
	}
}

func (m *Manager) setState(ctx context.Context, s State, err error) {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
	m.notify(s, err)
}

func (m *Manager) notify(s State, err error) {
	if m.opts.OnState != nil {
		m.opts.OnState(s, err)
	}
}
