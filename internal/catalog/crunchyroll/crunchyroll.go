// Package crunchyroll implements the catalog contract against the Crunchyroll
// JSON API.
package crunchyroll

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

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"release_bot/internal/catalog"
	"release_bot/internal/config"
)

const (
	userAgent  = "Crunchyroll/4.90.2 (bundle_identifier:com.crunchyroll.iphone; build_number:4403585.457501952) iOS/26.2.0 Gravity/4.90.2"
	deviceType = "iPhone 15"
	maxBody    = 5 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Connector logs into the API once per release check.
//
// The rate limiter and circuit breaker are shared by every session it creates,
// so throttling and failure tracking survive from one check to the next.
type Connector struct {
	cfg     *config.Config
	http    HTTPClient
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

var _ catalog.Connector = (*Connector)(nil)

// NewConnector creates a Connector using the catalog settings from cfg.
func NewConnector(cfg *config.Config, client HTTPClient, log *slog.Logger) *Connector {
	return newConnector(cfg, client, log, defaultBreakerSettings(log))
}

func newConnector(cfg *config.Config, client HTTPClient, log *slog.Logger, st gobreaker.Settings) *Connector {
	burst := int(cfg.CatalogRateLimit)
	if burst < 1 {
		burst = 1
	}
	return &Connector{
		cfg:     cfg,
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(cfg.CatalogRateLimit), burst),
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
	}
}

func defaultBreakerSettings(log *slog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "circuit", name, "from", from.String(), "to", to.String())
		},
	}
}

// breakerSuccess reports whether err leaves the breaker's failure count
// alone. Only transport errors and 5xx answers count against the API.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode < http.StatusInternalServerError
	}
	return false
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	AccountID   string `json:"account_id"`
}

// Connect authenticates with the configured account and returns a new session.
func (c *Connector) Connect(ctx context.Context) (catalog.Client, error) {
	email, password, err := c.cfg.Credentials()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", email)
	form.Set("password", password)
	form.Set("scope", "offline_access")
	form.Set("device_id", c.cfg.DeviceID)
	form.Set("device_type", deviceType)
	form.Set("device_name", deviceType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CatalogAPIURL+"/auth/v1/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.cfg.CatalogClientID != "" {
		req.SetBasicAuth(c.cfg.CatalogClientID, c.cfg.CatalogClientSecret)
	}

	var tok tokenResponse
	if err := c.doJSON(req, &tok); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("authenticate: empty access token")
	}

	c.log.Debug("catalog session created", "account_id", tok.AccountID, "expires_in", tok.ExpiresIn)
	return &Client{conn: c, token: tok.AccessToken}, nil
}

// doJSON executes req through the limiter and breaker and decodes a JSON body into v.
func (c *Connector) doJSON(req *http.Request, v any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	body, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http %s: %w", req.Method, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body.([]byte), v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
