// Package api is the REST client for the Mission Registry.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"droneops-console/internal/fleet"
	"droneops-console/internal/logging"
)

const tracerName = "droneops-console/internal/api"

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the registry's /api surface.
type Client struct {
	base           *url.URL
	http           *http.Client
	tokens         TokenSource
	readRetries    int
	backoff        time.Duration
	tracer         trace.Tracer
	onUnauthorized func()
	log            *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithTokenSource(ts TokenSource) Option { return func(c *Client) { c.tokens = ts } }

// WithReadRetries sets how many times a GET is retried after a transport failure.
func WithReadRetries(n int) Option { return func(c *Client) { c.readRetries = n } }

// WithRetryBackoff sets the base delay between GET retries; attempt n waits n*d.
func WithRetryBackoff(d time.Duration) Option { return func(c *Client) { c.backoff = d } }

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithUnauthorizedHook runs fn whenever the registry answers 401.
func WithUnauthorizedHook(fn func()) Option { return func(c *Client) { c.onUnauthorized = fn } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client for the registry at baseURL (without the /api suffix).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	c := &Client{
		base:        u,
		http:        &http.Client{Timeout: 10 * time.Second},
		readRetries: 2,
		backoff:     200 * time.Millisecond,
		tracer:      otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logging.FromContext(context.Background())
	}
	return c, nil
}

// envelope is the registry's response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Token   string          `json:"token,omitempty"`
	User    *fleet.User     `json:"user,omitempty"`
}

func (c *Client) endpoint(path string, q url.Values) string {
	s := c.base.String() + "/api" + path
	if len(q) > 0 {
		s += "?" + q.Encode()
	}
	return s
}

// do sends one logical request. GETs are retried on transport failure.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any) (*envelope, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = b
	}
	attempts := 1
	if method == http.MethodGet {
		attempts += c.readRetries
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			c.log.Debug("retrying request", "method", method, "path", path, "attempt", i+1, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, fleet.NewError(fleet.CodeNetwork, method+" "+path, ctx.Err())
			case <-time.After(time.Duration(i) * c.backoff):
			}
		}
		env, err := c.once(ctx, method, path, q, payload)
		if err == nil {
			return env, nil
		}
		lastErr = err
		if !fleet.Retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, path string, q url.Values, payload []byte) (*envelope, error) {
	reqID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, method+" /api"+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", "/api"+path),
			attribute.String("request.id", reqID),
		))
	defer span.End()

	env, status, err := c.roundTrip(ctx, reqID, method, path, q, payload)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return env, nil
}

func (c *Client) roundTrip(ctx context.Context, reqID, method, path string, q url.Values, payload []byte) (*envelope, int, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), rdr)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok, err := c.tokens.Token(); err == nil && tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fleet.NewError(fleet.CodeNetwork, method+" "+path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fleet.NewError(fleet.CodeNetwork, "read "+method+" "+path, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	msg := env.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, resp.StatusCode, fleet.NewError(fleet.CodeAuth, msg, nil).With("request_id", reqID)
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, fleet.NewError(fleet.CodeNotFound, msg, nil).With("path", path)
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, resp.StatusCode, fleet.NewError(fleet.CodeNetwork, msg, nil).With("status", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, resp.StatusCode, fleet.NewError(fleet.CodeRejected, msg, nil).
			With("status", resp.StatusCode).With("request_id", reqID)
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return &envelope{Status: "success"}, resp.StatusCode, nil
	}
	if decodeErr != nil {
		return nil, resp.StatusCode, fleet.NewError(fleet.CodeRejected, "malformed response from registry", decodeErr)
	}
	if env.Status == "error" || env.Status == "fail" {
		return nil, resp.StatusCode, fleet.NewError(fleet.CodeRejected, msg, nil).With("request_id", reqID)
	}
	return &env, resp.StatusCode, nil
}

// data decodes env.Data into out. When key is set and present, the value under
// key is used; otherwise Data itself is decoded.
func (e *envelope) data(key string, out any) error {
	if len(e.Data) == 0 {
		return fleet.NewError(fleet.CodeRejected, "response has no data", nil)
	}
	if key != "" {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(e.Data, &wrapped); err == nil {
			if inner, ok := wrapped[key]; ok {
				return decodeStrict(inner, out)
			}
		}
	}
	return decodeStrict(e.Data, out)
}

func decodeStrict(b []byte, out any) error {
	if err := json.Unmarshal(b, out); err != nil {
		return fleet.NewError(fleet.CodeRejected, "malformed response data", err)
	}
	return nil
}

// ListParams filter list endpoints. Zero values are omitted.
type ListParams struct {
	Status string
	Page   int
	Limit  int
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	if p.Status != "" {
		q.Set("status", p.Status)
	}
	if p.Page > 0 {
		q.Set("page", fmt.Sprint(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", fmt.Sprint(p.Limit))
	}
	return q
}

func escape(id string) string { return url.PathEscape(id) }

// IsAuth is a convenience for errors.Is(err, fleet.ErrAuth).
func IsAuth(err error) bool { return errors.Is(err, fleet.ErrAuth) }
