package devregistry

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"droneops-console/internal/fleet"
)

type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    any         `json:"data,omitempty"`
	Token   string      `json:"token,omitempty"`
	User    *fleet.User `json:"user,omitempty"`
}

func ok(c echo.Context, code int, key string, v any) error {
	return c.JSON(code, envelope{Status: "success", Data: map[string]any{key: v}})
}

// fail maps registry errors onto HTTP statuses.
func fail(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch fleet.CodeOf(err) {
	case fleet.CodeNotFound:
		code = http.StatusNotFound
	case fleet.CodeAuth:
		code = http.StatusUnauthorized
	case fleet.CodeInvalidTransition, fleet.CodeGeometryLocked:
		code = http.StatusConflict
	case fleet.CodeRejected:
		code = http.StatusBadRequest
	}
	msg := err.Error()
	var fe *fleet.Error
	if errors.As(err, &fe) {
		msg = fe.Message
	}
	return c.JSON(code, envelope{Status: "error", Message: msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, envelope{Status: "error", Message: msg})
}

func claims(c echo.Context) *Claims {
	tok, _ := c.Get("user").(*jwt.Token)
	if tok == nil {
		return nil
	}
	cl, _ := tok.Claims.(*Claims)
	return cl
}

func (s *Server) authenticated(c echo.Context, code int, u fleet.User) error {
	tok, err := s.IssueToken(u)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(code, envelope{Status: "success", Token: tok, User: &u})
}

func (s *Server) handleLogin(c echo.Context) error {
	var cred fleet.Credentials
	if err := c.Bind(&cred); err != nil {
		return badRequest(c, "invalid request body")
	}
	u, err := s.reg.Authenticate(cred.Email, cred.Password)
	if err != nil {
		return fail(c, err)
	}
	return s.authenticated(c, http.StatusOK, u)
}

func (s *Server) handleRegister(c echo.Context) error {
	var reg fleet.Registration
	if err := c.Bind(&reg); err != nil {
		return badRequest(c, "invalid request body")
	}
	u, err := s.reg.Register(reg)
	if err != nil {
		return fail(c, err)
	}
	return s.authenticated(c, http.StatusCreated, u)
}

func (s *Server) handleProfile(c echo.Context) error {
	cl := claims(c)
	if cl == nil {
		return fail(c, fleet.NewError(fleet.CodeAuth, "no token claims", nil))
	}
	u, err := s.reg.User(cl.Subject)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, envelope{Status: "success", User: &u})
}

func (s *Server) handleListMissions(c echo.Context) error {
	return ok(c, http.StatusOK, "missions", s.reg.Missions(c.QueryParam("status")))
}

func (s *Server) handleGetMission(c echo.Context) error {
	m, err := s.reg.Mission(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "mission", m)
}

func (s *Server) handleCreateMission(c echo.Context) error {
	var m fleet.Mission
	if err := c.Bind(&m); err != nil {
		return badRequest(c, "invalid request body")
	}
	m, err := s.reg.CreateMission(m)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, "mission", m)
}

func (s *Server) handleUpdateMission(c echo.Context) error {
	var p fleet.MissionPatch
	if err := c.Bind(&p); err != nil {
		return badRequest(c, "invalid request body")
	}
	m, err := s.reg.UpdateMission(c.Param("id"), p)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "mission", m)
}

func (s *Server) handleDeleteMission(c echo.Context) error {
	if err := s.reg.DeleteMission(c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleProgress(c echo.Context) error {
	var p fleet.ProgressUpdate
	if err := c.Bind(&p); err != nil {
		return badRequest(c, "invalid request body")
	}
	m, err := s.reg.UpdateProgress(c.Param("id"), p)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "mission", m)
}

func (s *Server) handleCommand(a fleet.Action) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body struct {
			Reason string `json:"reason"`
		}
		if c.Request().ContentLength > 0 {
			if err := c.Bind(&body); err != nil {
				return badRequest(c, "invalid request body")
			}
		}
		m, err := s.reg.Command(c.Param("id"), a, body.Reason)
		if err != nil {
			return fail(c, err)
		}
		s.log.Info("mission command", "mission_id", m.ID, "action", a, "status", m.Status)
		return ok(c, http.StatusOK, "mission", m)
	}
}

func (s *Server) handleListDrones(c echo.Context) error {
	return ok(c, http.StatusOK, "drones", s.reg.Drones(c.QueryParam("status")))
}

func (s *Server) handleGetDrone(c echo.Context) error {
	d, err := s.reg.Drone(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "drone", d)
}

func (s *Server) handleCreateDrone(c echo.Context) error {
	var d fleet.Drone
	if err := c.Bind(&d); err != nil {
		return badRequest(c, "invalid request body")
	}
	d, err := s.reg.CreateDrone(d)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, "drone", d)
}

func (s *Server) handleUpdateDrone(c echo.Context) error {
	var u DroneUpdate
	if err := c.Bind(&u); err != nil {
		return badRequest(c, "invalid request body")
	}
	d, err := s.reg.UpdateDrone(c.Param("id"), u)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "drone", d)
}

func (s *Server) handleDeleteDrone(c echo.Context) error {
	if err := s.reg.DeleteDrone(c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTelemetry(c echo.Context) error {
	var t fleet.Telemetry
	if err := c.Bind(&t); err != nil {
		return badRequest(c, "invalid request body")
	}
	d, err := s.reg.UpdateTelemetry(c.Param("id"), t)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "drone", d)
}

func (s *Server) handleListReports(c echo.Context) error {
	return ok(c, http.StatusOK, "reports", s.reg.Reports())
}

func (s *Server) handleGetReport(c echo.Context) error {
	r, err := s.reg.Report(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "report", r)
}

func (s *Server) handleCreateReport(c echo.Context) error {
	var r fleet.Report
	if err := c.Bind(&r); err != nil {
		return badRequest(c, "invalid request body")
	}
	r, err := s.reg.CreateReport(r)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, "report", r)
}

func (s *Server) handleDeleteReport(c echo.Context) error {
	if err := s.reg.DeleteReport(c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStats(c echo.Context) error {
	return ok(c, http.StatusOK, "stats", s.reg.Stats())
}

func (s *Server) handleWS(c echo.Context) error {
	user := ""
	if cl := claims(c); cl != nil {
		user = cl.Email
	}
	return s.hub.Serve(c.Response(), c.Request(), user)
}
