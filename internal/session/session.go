// Package session wires the REST client, the event channel, the view store
// and the command dispatcher into one console session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"droneops-console/internal/api"
	"droneops-console/internal/channel"
	"droneops-console/internal/command"
	"droneops-console/internal/config"
	"droneops-console/internal/credentials"
	"droneops-console/internal/event"
	"droneops-console/internal/fleet"
	"droneops-console/internal/logging"
	"droneops-console/internal/recorder"
	"droneops-console/internal/viewmodel"
)

// Deps are the collaborators a Session does not build itself. Only
// Credentials is required.
type Deps struct {
	Credentials *credentials.Store
	Recorder    recorder.EventWriter
	Logger      *slog.Logger
	Notify      command.Notifier
	OnChannel   channel.StateListener
	HTTPClient  *http.Client
	Dial        channel.Dialer
}

// Session is one operator's connection to the registry.
type Session struct {
	cfg   *config.Config
	api   *api.Client
	ch    *channel.Manager
	store *viewmodel.Store
	disp  *command.Dispatcher
	creds *credentials.Store
	rec   recorder.EventWriter
	log   *slog.Logger

	onChannel channel.StateListener

	mu   sync.Mutex
	view *View

	topicsMu sync.Mutex
}

// New builds a session from cfg. Nothing is contacted until Login, Resume or OpenView.
func New(cfg *config.Config, deps Deps) (*Session, error) {
	if deps.Credentials == nil {
		return nil, errors.New("session: credentials store is required")
	}
	log := deps.Logger
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	s := &Session{
		cfg:       cfg,
		store:     viewmodel.NewStore(cfg.View.HistoryLimit, cfg.View.AlertLimit),
		creds:     deps.Credentials,
		rec:       deps.Recorder,
		log:       log.With("component", "session"),
		onChannel: deps.OnChannel,
	}

	hc := deps.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.API.Timeout}
	}
	client, err := api.New(cfg.API.BaseURL,
		api.WithHTTPClient(hc),
		api.WithTokenSource(deps.Credentials),
		api.WithReadRetries(cfg.API.ReadRetries),
		api.WithUnauthorizedHook(s.expire),
		api.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	s.api = client

	s.ch = channel.New(channel.Options{
		URL:               cfg.Channel.URL,
		ReconnectAttempts: cfg.Channel.ReconnectAttempts,
		ReconnectDelay:    cfg.Channel.ReconnectDelay,
		Dial:              deps.Dial,
		Logger:            log,
		OnState:           s.channelState,
	}, s.handle)

	notify := deps.Notify
	s.disp = command.New(client, s.store,
		command.WithLogger(log),
		command.WithEffectRunner(s.apply),
		command.WithNotifier(func(n command.Notice) {
			if notify != nil {
				notify(n)
			}
		}),
	)
	return s, nil
}

// API exposes the REST client for one-shot reads.
func (s *Session) API() *api.Client { return s.api }

// Store exposes the view store.
func (s *Session) Store() *viewmodel.Store { return s.store }

// ChannelState returns the event channel's connection state.
func (s *Session) ChannelState() channel.State { return s.ch.State() }

// Topics returns the channel's active subscriptions.
func (s *Session) Topics() []event.Topic { return s.ch.Topics() }

// InFlight reports whether a command for missionID is outstanding.
func (s *Session) InFlight(missionID string) bool { return s.disp.InFlight(missionID) }

// handle is the channel's single dispatcher callback.
func (s *Session) handle(ev event.Event) {
	s.apply(s.store.Update(viewmodel.ApplyEvent(ev, time.Now().UTC())))
	if s.rec != nil {
		if err := s.rec.WriteEvent(ev); err != nil {
			s.log.Warn("record event", "kind", ev.Kind, "err", err)
		}
	}
}

// apply brings the channel's topics in line with the store. e only signals
// that a change is due: concurrent updates can hand their effects over out of
// order, so the target is always the latest snapshot.
//
// A mission that just retired can still see one event whose delivery had
// already started when its topic was dropped; ApplyEvent ignores it because
// the mission has left the working set.
func (s *Session) apply(e viewmodel.Effects) {
	if e.Empty() {
		return
	}
	s.topicsMu.Lock()
	defer s.topicsMu.Unlock()

	want := viewmodel.DesiredTopics(s.store.Snapshot())
	for _, t := range s.ch.Topics() {
		if _, ok := want[t]; ok {
			delete(want, t)
			continue
		}
		if err := s.ch.Unsubscribe(t); err != nil {
			s.log.Warn("unsubscribe", "topic", t, "err", err)
		}
	}
	for _, t := range slices.Sorted(maps.Keys(want)) {
		if err := s.ch.Subscribe(t); err != nil {
			s.log.Warn("subscribe", "topic", t, "err", err)
		}
	}
}

func (s *Session) channelState(st channel.State, err error) {
	if errors.Is(err, fleet.ErrAuth) {
		s.log.Warn("event channel rejected credentials", "err", err)
		if cerr := s.creds.Clear(); cerr != nil {
			s.log.Error("clear credentials", "err", cerr)
		}
	}
	if s.onChannel != nil {
		s.onChannel(st, err)
	}
}

// expire forces a fresh login after the registry answered 401.
func (s *Session) expire() {
	s.log.Warn("registry rejected credentials, logging out")
	if err := s.creds.Clear(); err != nil {
		s.log.Error("clear credentials", "err", err)
	}
	go s.ch.Disconnect()
}

// Login authenticates, stores the token and opens the event channel.
func (s *Session) Login(ctx context.Context, email, password string) (fleet.User, error) {
	res, err := s.api.Login(ctx, fleet.Credentials{Email: email, Password: password})
	if err != nil {
		return fleet.User{}, err
	}
	return s.start(res)
}

// Register creates an account and logs in with it.
func (s *Session) Register(ctx context.Context, r fleet.Registration) (fleet.User, error) {
	res, err := s.api.Register(ctx, r)
	if err != nil {
		return fleet.User{}, err
	}
	return s.start(res)
}

func (s *Session) start(res api.AuthResult) (fleet.User, error) {
	if err := s.creds.Save(res.Token, res.User); err != nil {
		return fleet.User{}, err
	}
	s.log.Info("logged in", "user", res.User.Email)
	return res.User, s.ch.Connect(res.Token)
}

// Resume opens the event channel with the stored token.
func (s *Session) Resume() error {
	tok, err := s.creds.Token()
	if err != nil {
		return err
	}
	return s.ch.Connect(tok)
}

// Profile returns the user behind the stored token.
func (s *Session) Profile(ctx context.Context) (fleet.User, error) {
	return s.api.Profile(ctx)
}

// Logout closes the view and the channel and forgets the token.
func (s *Session) Logout() error {
	s.closeView()
	s.ch.Disconnect()
	s.apply(s.store.Update(viewmodel.Reset()))
	return s.creds.Clear()
}

// Dispatch issues a control command.
func (s *Session) Dispatch(ctx context.Context, missionID string, a fleet.Action, reason string) (fleet.Mission, error) {
	return s.disp.Dispatch(ctx, command.Request{MissionID: missionID, Action: a, Reason: reason})
}

// Close releases the view and the channel. The token is kept.
func (s *Session) Close() error {
	s.closeView()
	s.ch.Disconnect()
	if c, ok := s.rec.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (s *Session) closeView() {
	s.mu.Lock()
	v := s.view
	s.mu.Unlock()
	if v != nil {
		v.Close()
	}
}
