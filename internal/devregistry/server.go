package devregistry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"droneops-console/internal/config"
	"droneops-console/internal/fixture"
	"droneops-console/internal/fleet"
	"droneops-console/internal/logging"
)

// Claims are carried in issued tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Server exposes a Registry over HTTP and WebSocket.
type Server struct {
	e      *echo.Echo
	reg    *Registry
	hub    *Hub
	secret []byte
	ttl    time.Duration
	tick   time.Duration
	log    *slog.Logger
}

// New builds a server from cfg seeded with f.
func New(cfg config.DevRegistryConfig, f *fixture.Fixture, log *slog.Logger) *Server {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	log = log.With("component", "devregistry")
	s := &Server{
		e:      echo.New(),
		reg:    NewRegistry(f),
		hub:    NewHub(log),
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
		tick:   cfg.Tick,
		log:    log,
	}
	if s.ttl <= 0 {
		s.ttl = 12 * time.Hour
	}
	if s.tick <= 0 {
		s.tick = time.Second
	}
	s.reg.publish = s.hub.Publish
	s.e.HideBanner = true
	s.e.HidePort = true
	s.routes()
	return s
}

// Registry returns the backing state.
func (s *Server) Registry() *Registry { return s.reg }

// Hub returns the channel hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) routes() {
	s.e.Use(middleware.Recover())
	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	auth := s.jwtMiddleware()

	api := s.e.Group("/api")
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/register", s.handleRegister)
	api.GET("/auth/profile", s.handleProfile, auth)

	missions := api.Group("/missions", auth)
	missions.GET("", s.handleListMissions)
	missions.POST("", s.handleCreateMission)
	missions.GET("/:id", s.handleGetMission)
	missions.PATCH("/:id", s.handleUpdateMission)
	missions.DELETE("/:id", s.handleDeleteMission)
	missions.PATCH("/:id/progress", s.handleProgress)
	for _, a := range fleet.Actions {
		missions.POST("/:id/"+string(a), s.handleCommand(a))
	}

	drones := api.Group("/drones", auth)
	drones.GET("", s.handleListDrones)
	drones.POST("", s.handleCreateDrone)
	drones.GET("/:id", s.handleGetDrone)
	drones.PATCH("/:id", s.handleUpdateDrone)
	drones.DELETE("/:id", s.handleDeleteDrone)
	drones.PATCH("/:id/telemetry", s.handleTelemetry)

	reports := api.Group("/reports", auth)
	reports.GET("", s.handleListReports)
	reports.POST("", s.handleCreateReport)
	reports.GET("/stats/organization", s.handleStats)
	reports.GET("/:id", s.handleGetReport)
	reports.DELETE("/:id", s.handleDeleteReport)

	s.e.GET("/ws", s.handleWS, auth)
}

func (s *Server) jwtMiddleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		NewClaimsFunc: func(echo.Context) jwt.Claims { return new(Claims) },
		SigningKey:    s.secret,
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		ErrorHandler: func(c echo.Context, err error) error {
			msg := "invalid or expired token"
			if errors.Is(err, echojwt.ErrJWTMissing) {
				msg = "missing or malformed token"
			}
			return c.JSON(http.StatusUnauthorized, envelope{Status: "error", Message: msg})
		},
	})
}

// IssueToken signs a token for u.
func (s *Server) IssueToken(u fleet.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Run drives the flight simulation until ctx is done.
func (s *Server) Run(ctx context.Context) {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.reg.Tick(s.tick)
		}
	}
}

// ListenAndServe serves on addr and runs the simulation until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	go s.Run(ctx)
	errc := make(chan error, 1)
	go func() {
		s.log.Info("dev registry listening", "addr", addr)
		errc <- s.e.Start(addr)
	}()
	select {
	case err := <-errc:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.e.Shutdown(shutdownCtx)
}
