package api

import (
	"context"
	"net/http"

	"droneops-console/internal/fleet"
)

// AuthResult is what login and register return.
type AuthResult struct {
	Token string
	User  fleet.User
}

func (c *Client) Login(ctx context.Context, cred fleet.Credentials) (AuthResult, error) {
	return c.authCall(ctx, "/auth/login", cred)
}

func (c *Client) Register(ctx context.Context, r fleet.Registration) (AuthResult, error) {
	return c.authCall(ctx, "/auth/register", r)
}

// Profile returns the user the current token belongs to.
func (c *Client) Profile(ctx context.Context) (fleet.User, error) {
	env, err := c.do(ctx, http.MethodGet, "/auth/profile", nil, nil)
	if err != nil {
		return fleet.User{}, err
	}
	if env.User != nil {
		return *env.User, nil
	}
	var u fleet.User
	if err := env.data("user", &u); err != nil {
		return fleet.User{}, err
	}
	return u, nil
}

func (c *Client) authCall(ctx context.Context, path string, body any) (AuthResult, error) {
	env, err := c.do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return AuthResult{}, err
	}
	if env.Token == "" {
		return AuthResult{}, fleet.NewError(fleet.CodeRejected, "registry returned no token", nil)
	}
	res := AuthResult{Token: env.Token}
	if env.User != nil {
		res.User = *env.User
	}
	return res, nil
}
