// Package backend talks to the upstream employee REST API that feeds the
// local cache.
package backend

import (
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
)

const maxImageBytes = 5 << 20

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	Code     int
	Endpoint string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s returned status %d", e.Endpoint, e.Code)
}

// IsStatus reports whether err is a StatusError carrying code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Config holds the connection settings of a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retry   RetryPolicy
}

// Client is a typed client for the upstream API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	transport http.RoundTripper
	logger    *slog.Logger
}

// WithTransport replaces the base transport wrapped by the retry layer.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transport = rt
	}
}

// WithLogger sets the logger used when no logger travels in the context.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// New validates cfg and builds a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend: base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: invalid base url %q", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newRetryTransport(o.transport, cfg.Retry, o.logger),
		},
	}, nil
}

// Users lists every employee.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.getJSON(ctx, "users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Authorizations lists remote work authorizations.
func (c *Client) Authorizations(ctx context.Context) ([]Authorization, error) {
	var out []Authorization
	if err := c.getJSON(ctx, "authorizations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Vacations lists approved vacation periods.
func (c *Client) Vacations(ctx context.Context) ([]Vacation, error) {
	var out []Vacation
	if err := c.getJSON(ctx, "vacations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Holidays lists company holidays.
func (c *Client) Holidays(ctx context.Context) ([]Holiday, error) {
	var out []Holiday
	if err := c.getJSON(ctx, "holidays", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Schedules lists per-weekday work schedules.
func (c *Client) Schedules(ctx context.Context) ([]Schedule, error) {
	var out []Schedule
	if err := c.getJSON(ctx, "schedules", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Exceptions lists one-day schedule exceptions.
func (c *Client) Exceptions(ctx context.Context) ([]Exception, error) {
	var out []Exception
	if err := c.getJSON(ctx, "exceptions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StatusBoard lists the status board entries of a user.
func (c *Client) StatusBoard(ctx context.Context, userID string) ([]BoardEntry, error) {
	var out []BoardEntry
	query := url.Values{"user_id": []string{userID}}
	if err := c.getJSON(ctx, "status-board", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Image downloads a profile picture. Relative references resolve against the
// base url. Absolute references to other hosts are fetched without the token.
func (c *Client) Image(ctx context.Context, ref string) (Image, error) {
	target, err := c.resolve(ref, nil)
	if err != nil {
		return Image{}, err
	}

	resp, err := c.do(ctx, target, "image/*")
	if err != nil {
		return Image{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("backend: read image %s: %w", target.Redacted(), err)
	}
	if len(data) > maxImageBytes {
		return Image{}, fmt.Errorf("backend: image %s exceeds %d bytes", target.Redacted(), maxImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return Image{ContentType: contentType, Data: data}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target, err := c.resolve(path, query)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, target, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, target *url.URL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if c.token != "" && c.sameOrigin(target) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: GET %s: %w", target.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Endpoint: target.Path}
	}
	return resp, nil
}

func (c *Client) resolve(ref string, query url.Values) (*url.URL, error) {
	rel, err := url.Parse(strings.TrimPrefix(ref, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: invalid reference %q: %w", ref, err)
	}
	target := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	return target, nil
}

// sameOrigin reports whether target is served by the configured backend.
func (c *Client) sameOrigin(target *url.URL) bool {
	return strings.EqualFold(target.Scheme, c.baseURL.Scheme) && strings.EqualFold(target.Host, c.baseURL.Host)
}
