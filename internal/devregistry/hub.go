package devregistry

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"droneops-console/internal/event"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	topics map[event.Topic]bool
	user   string
}

// Hub fans published events out to the clients that joined the matching room.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub returns an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, clients: make(map[*client]struct{})}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Subscribers returns how many clients joined t.
func (h *Hub) Subscribers(t event.Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients {
		if c.topics[t] {
			n++
		}
	}
	return n
}

// Serve upgrades the request and runs the client until it disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, user string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), topics: map[event.Topic]bool{}, user: user}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info("channel client connected", "user", user, "remote", r.RemoteAddr)

	go h.writeLoop(c)
	h.readLoop(c)
	return nil
}

func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		t, join, err := event.ParseControl(data)
		if err != nil {
			h.log.Warn("ignoring control message", "user", c.user, "err", err)
			continue
		}
		h.mu.Lock()
		if join {
			c.topics[t] = true
		} else {
			delete(c.topics, t)
		}
		h.mu.Unlock()
		h.log.Debug("channel subscription", "user", c.user, "topic", t, "join", join)
	}
}

func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.conn.Close()
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.log.Info("channel client disconnected", "user", c.user)
}

// Publish delivers ev to every client in its room. Slow clients lose messages.
func (h *Hub) Publish(ev event.Event) {
	b, err := event.Encode(ev)
	if err != nil {
		h.log.Error("encode event", "kind", ev.Kind, "err", err)
		return
	}
	topic := ev.Topic()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.topics[topic] {
			continue
		}
		select {
		case c.send <- b:
		default:
			h.log.Warn("dropping event for slow client", "user", c.user, "kind", ev.Kind)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
