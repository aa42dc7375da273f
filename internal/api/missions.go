package api

import (
	"context"
	"net/http"

	"droneops-console/internal/fleet"
)

func (c *Client) ListMissions(ctx context.Context, p ListParams) ([]fleet.Mission, error) {
	env, err := c.do(ctx, http.MethodGet, "/missions", p.values(), nil)
	if err != nil {
		return nil, err
	}
	var out []fleet.Mission
	if err := env.data("missions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMission(ctx context.Context, id string) (fleet.Mission, error) {
	return c.missionCall(ctx, http.MethodGet, "/missions/"+escape(id), nil)
}

func (c *Client) CreateMission(ctx context.Context, m fleet.Mission) (fleet.Mission, error) {
	return c.missionCall(ctx, http.MethodPost, "/missions", m)
}

func (c *Client) UpdateMission(ctx context.Context, id string, p fleet.MissionPatch) (fleet.Mission, error) {
	return c.missionCall(ctx, http.MethodPatch, "/missions/"+escape(id), p)
}

func (c *Client) DeleteMission(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/missions/"+escape(id), nil, nil)
	return err
}

// UpdateProgress reports progress for an active mission.
func (c *Client) UpdateProgress(ctx context.Context, id string, p fleet.ProgressUpdate) (fleet.Mission, error) {
	return c.missionCall(ctx, http.MethodPatch, "/missions/"+escape(id)+"/progress", p)
}

type abortBody struct {
	Reason string `json:"reason"`
}

// Command posts a control action. Only abort carries a body.
func (c *Client) Command(ctx context.Context, id string, a fleet.Action, reason string) (fleet.Mission, error) {
	var body any
	if a == fleet.ActionAbort {
		body = abortBody{Reason: reason}
	}
	return c.missionCall(ctx, http.MethodPost, "/missions/"+escape(id)+"/"+string(a), body)
}

func (c *Client) missionCall(ctx context.Context, method, path string, body any) (fleet.Mission, error) {
	env, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return fleet.Mission{}, err
	}
	var m fleet.Mission
	if err := env.data("mission", &m); err != nil {
		return fleet.Mission{}, err
	}
	return m, nil
}
