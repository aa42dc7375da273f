package api

import (
	"context"
	"net/http"

	"droneops-console/internal/fleet"
)

func (c *Client) ListReports(ctx context.Context, p ListParams) ([]fleet.Report, error) {
	env, err := c.do(ctx, http.MethodGet, "/reports", p.values(), nil)
	if err != nil {
		return nil, err
	}
	var out []fleet.Report
	if err := env.data("reports", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetReport(ctx context.Context, id string) (fleet.Report, error) {
	return c.reportCall(ctx, http.MethodGet, "/reports/"+escape(id), nil)
}

func (c *Client) CreateReport(ctx context.Context, r fleet.Report) (fleet.Report, error) {
	return c.reportCall(ctx, http.MethodPost, "/reports", r)
}

func (c *Client) DeleteReport(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/reports/"+escape(id), nil, nil)
	return err
}

// OrganizationStats returns the registry-wide counters.
func (c *Client) OrganizationStats(ctx context.Context) (fleet.OrganizationStats, error) {
	env, err := c.do(ctx, http.MethodGet, "/reports/stats/organization", nil, nil)
	if err != nil {
		return fleet.OrganizationStats{}, err
	}
	var s fleet.OrganizationStats
	if err := env.data("stats", &s); err != nil {
		return fleet.OrganizationStats{}, err
	}
	return s, nil
}

func (c *Client) reportCall(ctx context.Context, method, path string, body any) (fleet.Report, error) {
	env, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return fleet.Report{}, err
	}
	var r fleet.Report
	if err := env.data("report", &r); err != nil {
		return fleet.Report{}, err
	}
	return r, nil
}
