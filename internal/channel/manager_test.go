package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneops-console/internal/event"
	"droneops-console/internal/fleet"
	"droneops-console/internal/logging"
)

// fakeConn is an in-memory Conn fed by the test.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []event.Control
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.in:
		return websocket.TextMessage, b, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(_ int, b []byte) error {
	var c event.Control
	if err := json.Unmarshal(b, &c); err != nil {
		return err
	}
	f.mu.Lock()
	f.written = append(f.written, c)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) controls() []event.Control {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Control(nil), f.written...)
}

func (f *fakeConn) push(t *testing.T, ev event.Event) {
	t.Helper()
	b, err := event.Encode(ev)
	require.NoError(t, err)
	f.in <- b
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
	states []State
	errs   []error
}

func (r *recorder) handle(ev event.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) onState(s State, err error) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func telemetry(droneID string, battery float64) event.Event {
	return event.Event{Kind: event.DroneTelemetry, Payload: event.Payload{DroneID: droneID, BatteryLevel: event.Float(battery)}}
}

func connectFake(t *testing.T, rec *recorder) (*Manager, chan *fakeConn) {
	t.Helper()
	conns := make(chan *fakeConn, 8)
	m := New(Options{
		URL:               "ws://registry/ws",
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Millisecond,
		Logger:            logging.Discard(),
		OnState:           rec.onState,
		Dial: func(ctx context.Context, url string, h http.Header) (Conn, error) {
			assert.Equal(t, "Bearer tok", h.Get("Authorization"))
			c := newFakeConn()
			conns <- c
			return c, nil
		},
	}, rec.handle)
	t.Cleanup(m.Disconnect)
	require.NoError(t, m.Connect("tok"))
	require.Eventually(t, func() bool { return m.State() == Connected }, time.Second, time.Millisecond)
	return m, conns
}

func TestConnectRequiresToken(t *testing.T) {
	m := New(Options{Logger: logging.Discard()}, nil)
	err := m.Connect("")
	assert.True(t, errors.Is(err, fleet.ErrAuth))
	assert.Equal(t, Disconnected, m.State())
}

func TestDeliversOnlySubscribedTopics(t *testing.T) {
	rec := &recorder{}
	m, conns := connectFake(t, rec)
	conn := <-conns

	require.NoError(t, m.Subscribe(event.DroneTopic("d1")))
	conn.push(t, telemetry("d2", 10))
	conn.push(t, telemetry("d1", 20))
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, "d1", rec.events[0].DroneID)
	rec.mu.Unlock()
	assert.Equal(t, []event.Control{{Event: event.SubscribeDrone, Data: "d1"}}, conn.controls())
}

func TestSubscribeIsIdempotent(t *testing.T) {
	rec := &recorder{}
	m, conns := connectFake(t, rec)
	conn := <-conns

	require.NoError(t, m.Subscribe(event.MissionTopic("m1")))
	require.NoError(t, m.Subscribe(event.MissionTopic("m1")))
	require.NoError(t, m.Unsubscribe(event.MissionTopic("m1")))
	require.NoError(t, m.Unsubscribe(event.MissionTopic("m1")))
	require.NoError(t, m.Unsubscribe(event.DroneTopic("never")))

	assert.Equal(t, []event.Control{
		{Event: event.JoinMission, Data: "m1"},
		{Event: event.LeaveMission, Data: "m1"},
	}, conn.controls())
	assert.Empty(t, m.Topics())
	assert.Error(t, m.Subscribe(event.Topic("nonsense")))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	rec := &recorder{}
	m, conns := connectFake(t, rec)
	conn := <-conns

	require.NoError(t, m.Subscribe(event.DroneTopic("d1")))
	conn.push(t, telemetry("d1", 50))
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Unsubscribe(event.DroneTopic("d1")))
	conn.push(t, telemetry("d1", 40))
	require.NoError(t, m.Subscribe(event.DroneTopic("d9")))
	conn.push(t, telemetry("d9", 30))
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, "d9", rec.events[1].DroneID)
	rec.mu.Unlock()
}

func TestDisconnectIsIdempotentAndFinal(t *testing.T) {
	rec := &recorder{}
	m, conns := connectFake(t, rec)
	conn := <-conns
	require.NoError(t, m.Subscribe(event.DroneTopic("d1")))

	m.Disconnect()
	m.Disconnect()
	assert.Equal(t, Disconnected, m.State())

	select {
	case conn.in <- mustEncode(t, telemetry("d1", 1)):
	default:
	}
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, rec.count())
	assert.True(t, m.Subscribed(event.DroneTopic("d1")), "subscriptions survive disconnect")
}

func mustEncode(t *testing.T, ev event.Event) []byte {
	b, err := event.Encode(ev)
	require.NoError(t, err)
	return b
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	rec := &recorder{}
	m, conns := connectFake(t, rec)
	first := <-conns
	require.NoError(t, m.Subscribe(event.MissionTopic("m1")))
	require.NoError(t, m.Subscribe(event.DroneTopic("d1")))

	first.Close()
	var second *fakeConn
	select {
	case second = <-conns:
	case <-time.After(time.Second):
		t.Fatal("no reconnection")
	}
	require.Eventually(t, func() bool { return len(second.controls()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []event.Control{
		{Event: event.SubscribeDrone, Data: "d1"},
		{Event: event.JoinMission, Data: "m1"},
	}, second.controls())
	assert.Equal(t, Connected, m.State())
}

func TestGivesUpAfterReconnectAttempts(t *testing.T) {
	var dials atomic.Int32
	rec := &recorder{}
	m := New(Options{
		URL:               "ws://registry/ws",
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Millisecond,
		Logger:            logging.Discard(),
		OnState:           rec.onState,
		Dial: func(ctx context.Context, url string, h http.Header) (Conn, error) {
			dials.Add(1)
			return nil, fleet.NewError(fleet.CodeNetwork, "refused", nil)
		},
	}, rec.handle)
	t.Cleanup(m.Disconnect)

	require.NoError(t, m.Connect("tok"))
	require.Eventually(t, func() bool {
		return m.State() == Disconnected && errors.Is(rec.lastErr(), fleet.ErrChannelDisconnected)
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(6), dials.Load(), "initial dial plus five reconnection attempts")

	rec.mu.Lock()
	assert.Equal(t, Connecting, rec.states[0])
	assert.Contains(t, rec.states, Reconnecting)
	rec.mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(6), dials.Load(), "no attempts after giving up")
}

func TestAuthFailureStopsImmediately(t *testing.T) {
	var dials atomic.Int32
	rec := &recorder{}
	m := New(Options{
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Millisecond,
		Logger:            logging.Discard(),
		OnState:           rec.onState,
		Dial: func(ctx context.Context, url string, h http.Header) (Conn, error) {
			dials.Add(1)
			return nil, fleet.NewError(fleet.CodeAuth, "rejected", nil)
		},
	}, nil)
	t.Cleanup(m.Disconnect)
	require.NoError(t, m.Connect("tok"))
	require.Eventually(t, func() bool { return errors.Is(rec.lastErr(), fleet.ErrAuth) }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
	assert.Equal(t, Disconnected, m.State())
}

func TestHandlerPanicIsContained(t *testing.T) {
	var calls atomic.Int32
	conns := make(chan *fakeConn, 1)
	m := New(Options{
		Logger: logging.Discard(),
		Dial: func(ctx context.Context, url string, h http.Header) (Conn, error) {
			c := newFakeConn()
			conns <- c
			return c, nil
		},
	}, func(ev event.Event) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
	})
	t.Cleanup(m.Disconnect)
	require.NoError(t, m.Subscribe(event.DroneTopic("d1")))
	require.NoError(t, m.Connect("tok"))
	conn := <-conns
	conn.push(t, telemetry("d1", 1))
	conn.push(t, telemetry("d1", 2))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
}

func TestWebsocketRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	joined := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		topic, sub, err := event.ParseControl(msg)
		if err != nil || !sub {
			return
		}
		joined <- string(topic)
		id, _ := topic.Mission()
		frame, _ := event.Encode(event.Event{Kind: event.MissionProgress, Payload: event.Payload{MissionID: id, PercentComplete: event.Float(40)}})
		_ = c.WriteMessage(websocket.TextMessage, frame)
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	rec := &recorder{}
	m := New(Options{URL: url, Logger: logging.Discard(), OnState: rec.onState}, rec.handle)
	defer m.Disconnect()
	require.NoError(t, m.Subscribe(event.MissionTopic("m1")))
	require.NoError(t, m.Connect("good"))

	select {
	case topic := <-joined:
		assert.Equal(t, "mission:m1", topic)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw join-mission")
	}
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	bad := New(Options{URL: url, Logger: logging.Discard(), OnState: rec.onState}, nil)
	defer bad.Disconnect()
	require.NoError(t, bad.Connect("wrong"))
	require.Eventually(t, func() bool { return errors.Is(rec.lastErr(), fleet.ErrAuth) }, 2*time.Second, 5*time.Millisecond)
}
