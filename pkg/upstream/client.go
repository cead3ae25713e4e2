// Package upstream is the HTTP client for the platform's admin API. It feeds
// monitoring snapshots, forwards alert actions, runs compliance modules and
// reads the audit trail. Every endpoint group, and every monitoring endpoint,
// sits behind its own circuit breaker.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"

	"github.com/privacyshield/sazpd-console/pkg/errs"
	"github.com/privacyshield/sazpd-console/pkg/metrics"
	"github.com/privacyshield/sazpd-console/pkg/monitoring"
)

// Group names an endpoint group with its own breaker.
type Group string

const (
	GroupAlerts  Group = "alerts"
	GroupModules Group = "modules"
	GroupAudit   Group = "audit"
)

// MonitoringGroup returns the breaker group of one monitoring kind. A failing
// snapshot endpoint opens only its own breaker.
func MonitoringGroup(kind monitoring.Kind) Group {
	return Group("monitoring:" + string(kind))
}

// Groups returns every breaker group in a stable order.
func Groups() []Group {
	kinds := monitoring.Kinds()
	out := make([]Group, 0, len(kinds)+3)
	for _, k := range kinds {
		out = append(out, MonitoringGroup(k))
	}
	return append(out, GroupAlerts, GroupModules, GroupAudit)
}

// Client calls the admin API.
type Client struct {
	cfg      *ClientConfig
	base     *url.URL
	http     *http.Client
	breakers map[Group]*gobreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records breaker state changes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg *ClientConfig, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if cfg.BaseURL == "" {
		return nil, errs.Invalid("upstream base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errs.Invalid("invalid upstream base URL %q", cfg.BaseURL)
	}

	c := &Client{
		cfg:      cfg,
		base:     base,
		http:     &http.Client{},
		breakers: make(map[Group]*gobreaker.CircuitBreaker),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	for _, g := range Groups() {
		c.breakers[g] = c.newBreaker(g)
	}
	return c, nil
}

func (c *Client) newBreaker(g Group) *gobreaker.CircuitBreaker {
	threshold := uint32(c.cfg.BreakerFailures)
	if threshold == 0 {
		threshold = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(g),
		MaxRequests: 1,
		Timeout:     c.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only an unreachable backend trips the breaker. Client errors and
		// caller cancellation do not.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, errs.ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("upstream circuit breaker state changed",
				"group", name, "from", from.String(), "to", to.String())
			c.metrics.ObserveBreaker(name, int(to))
		},
	})
}

// BreakerState returns the current breaker state of g. Unknown groups report
// closed.
func (c *Client) BreakerState(g Group) gobreaker.State {
	cb, ok := c.breakers[g]
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// Ping checks that the health endpoint answers. It bypasses the breakers.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	return c.roundTrip(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// do sends one request through the breaker of g and decodes the JSON
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, g Group, method, path string, query url.Values, body, out any) error {
	if g != GroupModules && c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	_, err := c.breakers[g].Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, query, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errs.Unavailable(err, "upstream %s endpoints", g)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path += path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return errors.Wrapf(ctxErr, "%s %s", method, path)
		}
		return errs.Unavailable(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody()))
	if err != nil {
		return errs.Unavailable(err, "read %s %s response", method, path)
	}

	if resp.StatusCode >= 400 {
		return errs.FromStatus(resp.StatusCode, fmt.Sprintf("%s %s: %s", method, path, errorMessage(resp.StatusCode, raw)))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.Unavailable(err, "decode %s %s response", method, path)
	}
	return nil
}

func (c *Client) maxBody() int64 {
	if c.cfg.MaxResponseBytes > 0 {
		return c.cfg.MaxResponseBytes
	}
	return 8 << 20
}

// errorMessage extracts {"error": "..."} or {"message": "..."} from an
// error response, falling back to the status text.
func errorMessage(status int, raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return http.StatusText(status)
}
