package api

import (
	"context"
	"net/http"

	"droneops-console/internal/fleet"
)

// DronePatch is a partial drone update. Nil fields are left unchanged.
type DronePatch struct {
	Name   *string            `json:"name,omitempty"`
	Model  *string            `json:"model,omitempty"`
	Status *fleet.DroneStatus `json:"status,omitempty"`
}

func (c *Client) ListDrones(ctx context.Context, p ListParams) ([]fleet.Drone, error) {
	env, err := c.do(ctx, http.MethodGet, "/drones", p.values(), nil)
	if err != nil {
		return nil, err
	}
	var out []fleet.Drone
	if err := env.data("drones", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetDrone(ctx context.Context, id string) (fleet.Drone, error) {
	return c.droneCall(ctx, http.MethodGet, "/drones/"+escape(id), nil)
}

func (c *Client) CreateDrone(ctx context.Context, d fleet.Drone) (fleet.Drone, error) {
	return c.droneCall(ctx, http.MethodPost, "/drones", d)
}

func (c *Client) UpdateDrone(ctx context.Context, id string, p DronePatch) (fleet.Drone, error) {
	return c.droneCall(ctx, http.MethodPatch, "/drones/"+escape(id), p)
}

func (c *Client) DeleteDrone(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/drones/"+escape(id), nil, nil)
	return err
}

// UpdateTelemetry pushes a telemetry sample for a drone.
func (c *Client) UpdateTelemetry(ctx context.Context, id string, t fleet.Telemetry) (fleet.Drone, error) {
	return c.droneCall(ctx, http.MethodPatch, "/drones/"+escape(id)+"/telemetry", t)
}

func (c *Client) droneCall(ctx context.Context, method, path string, body any) (fleet.Drone, error) {
	env, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return fleet.Drone{}, err
	}
	var d fleet.Drone
	if err := env.data("drone", &d); err != nil {
		return fleet.Drone{}, err
	}
	return d, nil
}
