package devregistry

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"droneops-console/internal/config"
	"droneops-console/internal/event"
	"droneops-console/internal/fixture"
	"droneops-console/internal/fleet"
	"droneops-console/internal/logging"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DevRegistryConfig{JWTSecret: "test-secret", Tick: time.Second, TokenTTL: time.Hour}
	s := New(cfg, fixture.Default(), logging.Discard())
	s.reg.rng = rand.New(rand.NewSource(1))
	return s
}

type capture struct {
	mu  sync.Mutex
	evs []event.Event
}

func (c *capture) publish(ev event.Event) {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
}

func (c *capture) kinds() []event.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Kind
	for _, ev := range c.evs {
		out = append(out, ev.Kind)
	}
	return out
}

func do(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func login(t *testing.T, s *Server) string {
	t.Helper()
	w := do(t, s, http.MethodPost, "/api/auth/login", "", `{"email":"ops@example.com","password":"changeme"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", w.Code, w.Body.String())
	}
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if resp.Token == "" || resp.User == nil || resp.User.Email != "ops@example.com" {
		t.Fatalf("unexpected login response %+v", resp)
	}
	return resp.Token
}

func TestLoginAndProfile(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)

	w := do(t, s, http.MethodGet, "/api/auth/profile", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("profile status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"email":"ops@example.com"`) {
		t.Errorf("profile body %s", w.Body.String())
	}

	w = do(t, s, http.MethodPost, "/api/auth/login", "", `{"email":"ops@example.com","password":"nope"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password status %d, want 401", w.Code)
	}
}

func TestRegisterHashesPassword(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/auth/register", "", `{"name":"Kim","email":"kim@example.com","password":"hunter22"}`)
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("register status %d: %s", w.Code, w.Body.String())
	}
	if got := s.reg.accounts["kim@example.com"].hash; len(got) == 0 || string(got) == "hunter22" {
		t.Fatalf("password stored as %q", got)
	}
	if _, err := s.reg.Authenticate("kim@example.com", "hunter22"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	w = do(t, s, http.MethodPost, "/api/auth/register", "", `{"name":"Kim","email":"kim@example.com","password":"other"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate register status %d, want 400", w.Code)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/missions", "/api/drones", "/api/reports", "/api/auth/profile"} {
		w := do(t, s, http.MethodGet, path, "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status %d, want 401", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"status":"error"`) {
			t.Errorf("%s body %s", path, w.Body.String())
		}
	}
	w := do(t, s, http.MethodGet, "/api/missions", "garbage", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status %d", w.Code)
	}
}

func TestListMissionsFiltersByStatus(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)
	w := do(t, s, http.MethodGet, "/api/missions?status=scheduled", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		Data struct {
			Missions []fleet.Mission `json:"missions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data.Missions) != 1 || resp.Data.Missions[0].ID != "m3" {
		t.Errorf("unexpected missions %+v", resp.Data.Missions)
	}
}

func TestMissionCommandsFollowStateMachine(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)

	w := do(t, s, http.MethodPost, "/api/missions/m3/pause", token, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("pause scheduled: status %d, want 409", w.Code)
	}

	w = do(t, s, http.MethodPost, "/api/missions/m3/start", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("start: status %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"in-progress"`) {
		t.Errorf("start body %s", w.Body.String())
	}
	d, _ := s.reg.Drone("d2")
	if d.Status != fleet.DroneInMission {
		t.Errorf("drone status %s, want in-mission", d.Status)
	}

	w = do(t, s, http.MethodPost, "/api/missions/missing/start", token, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing mission status %d", w.Code)
	}
}

func TestAbortReleasesDrone(t *testing.T) {
	s := newTestServer(t)
	c := &capture{}
	s.reg.publish = c.publish
	token := login(t, s)

	w := do(t, s, http.MethodPost, "/api/missions/m1/abort", token, `{"reason":"wind"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("abort: status %d: %s", w.Code, w.Body.String())
	}
	m, _ := s.reg.Mission("m1")
	if m.Status != fleet.MissionAborted || m.EndTime.IsZero() {
		t.Errorf("mission after abort: %+v", m)
	}
	d, _ := s.reg.Drone("d1")
	if d.Status != fleet.DroneAvailable {
		t.Errorf("drone status %s, want available", d.Status)
	}
	kinds := c.kinds()
	if len(kinds) != 2 || kinds[0] != event.MissionAborted || kinds[1] != event.DroneStatus {
		t.Errorf("events %v", kinds)
	}
	c.mu.Lock()
	reason := c.evs[0].Reason
	c.mu.Unlock()
	if reason != "wind" {
		t.Errorf("reason %q", reason)
	}
}

func TestStartRejectsBusyDrone(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)
	w := do(t, s, http.MethodPatch, "/api/missions/m3", token, `{"assignedDrone":"d1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reassign: status %d: %s", w.Code, w.Body.String())
	}
	w = do(t, s, http.MethodPost, "/api/missions/m3/start", token, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("start with busy drone: status %d, want 400", w.Code)
	}
}

func TestGeometryLockedOnceStarted(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)
	w := do(t, s, http.MethodPatch, "/api/missions/m1", token, `{"waypoints":[]}`)
	if w.Code != http.StatusConflict {
		t.Errorf("edit waypoints of active mission: status %d, want 409", w.Code)
	}
	w = do(t, s, http.MethodPatch, "/api/missions/m1", token, `{"name":"renamed"}`)
	if w.Code != http.StatusOK {
		t.Errorf("rename active mission: status %d", w.Code)
	}
}

func TestDeleteActiveMissionRejected(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)
	if w := do(t, s, http.MethodDelete, "/api/missions/m1", token, ""); w.Code != http.StatusBadRequest {
		t.Errorf("delete active: status %d", w.Code)
	}
	if w := do(t, s, http.MethodDelete, "/api/missions/m4", token, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete completed: status %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)
	w := do(t, s, http.MethodGet, "/api/reports/stats/organization", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		Data struct {
			Stats fleet.OrganizationStats `json:"stats"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Stats.TotalMissions != 4 || resp.Data.Stats.TotalDrones != 4 {
		t.Errorf("stats %+v", resp.Data.Stats)
	}
}

func TestTickCompletesMission(t *testing.T) {
	s := newTestServer(t)
	c := &capture{}
	s.reg.publish = c.publish
	s.reg.step = 70

	s.reg.Tick(time.Second)

	m, _ := s.reg.Mission("m1")
	if m.Status != fleet.MissionCompleted || m.Progress.PercentComplete != 100 {
		t.Fatalf("mission after tick: status %s progress %.1f", m.Status, m.Progress.PercentComplete)
	}
	d, _ := s.reg.Drone("d1")
	if d.Status != fleet.DroneAvailable {
		t.Errorf("drone status %s", d.Status)
	}
	want := []event.Kind{event.DroneTelemetry, event.MissionProgress, event.MissionCompleted, event.DroneStatus}
	got := c.kinds()
	if len(got) != len(want) {
		t.Fatalf("events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestTickRaisesLowBatteryOnce(t *testing.T) {
	s := newTestServer(t)
	c := &capture{}
	if _, err := s.reg.UpdateTelemetry("d1", fleet.Telemetry{BatteryLevel: 20.2}); err != nil {
		t.Fatal(err)
	}
	s.reg.publish = c.publish

	s.reg.Tick(time.Second)
	s.reg.Tick(time.Second)

	alerts := 0
	c.mu.Lock()
	for _, ev := range c.evs {
		if ev.Kind == event.DroneAlert {
			alerts++
			if ev.MissionID != "m1" || ev.Topic() != event.MissionTopic("m1") {
				t.Errorf("alert routed to %s", ev.Topic())
			}
		}
	}
	c.mu.Unlock()
	if alerts != 1 {
		t.Errorf("alerts = %d, want 1", alerts)
	}
}

func TestChannelDeliversJoinedRoom(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.hub.Close()
	token := login(t, s)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	join, _ := event.SubscribeControl(event.MissionTopic("m3"))
	if err := conn.WriteJSON(join); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Subscribers(event.MissionTopic("m3")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if w := do(t, s, http.MethodPost, "/api/missions/m3/start", token, ""); w.Code != http.StatusOK {
		t.Fatalf("start: status %d", w.Code)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := event.Decode(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != event.MissionStarted || ev.MissionID != "m3" {
		t.Errorf("got %s for %s", ev.Kind, ev.MissionID)
	}
}

func TestChannelRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", resp)
	}
}

func TestRandomWalkMovement(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pos := fleet.Position{Latitude: 48.2082, Longitude: 16.3738, Altitude: 0.2}
	for _, model := range []string{"quad-x", "fixed-wing", "heavy-lift", "other"} {
		next, speed := randomWalk(pos, model, rng)
		if next.Altitude < 0 {
			t.Errorf("%s: altitude should not be negative: %f", model, next.Altitude)
		}
		if next == pos {
			t.Errorf("%s: expected position to change", model)
		}
		if speed <= 0 {
			t.Errorf("%s: speed %f", model, speed)
		}
	}
}

func TestBatteryDrain(t *testing.T) {
	cases := map[string]float64{
		"quad-x":     0.5,
		"fixed-wing": 0.3,
		"heavy-lift": 0.8,
		"other":      0.4,
	}
	for model, want := range cases {
		if got := batteryDrain(model); got != want {
			t.Errorf("batteryDrain(%s)=%f, want %f", model, got, want)
		}
	}
}
