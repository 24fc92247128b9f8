// Package broker is the REST client for the brokerage and its instrument
// master cache.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/intraday-executor/internal/observ"
)

// Client is the broker surface used by the executor and the monitor
type Client interface {
	FetchInstruments(ctx context.Context) ([]Instrument, error)
	SubmitOrder(ctx context.Context, payload map[string]any) (map[string]any, error)
	FetchPositions(ctx context.Context) ([]map[string]any, error)
}

// Config holds HTTP client settings
type Config struct {
	BaseURL            string
	ClientID           string
	AccessToken        string
	Timeout            time.Duration
	MaxRetries         int           // attempts for idempotent GETs
	Backoff            time.Duration // base delay, doubled per attempt
	RateLimitPerSecond float64
}

// HTTPClient talks to the broker REST API. Reads are retried with
// exponential backoff; order submission is attempted exactly once.
type HTTPClient struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewHTTPClient creates a broker client, filling zero settings with defaults
func NewHTTPClient(config Config) *HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.Backoff <= 0 {
		config.Backoff = time.Second
	}
	limit := rate.Inf
	if config.RateLimitPerSecond > 0 {
		limit = rate.Limit(config.RateLimitPerSecond)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &HTTPClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(limit, 2),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FetchInstruments downloads the instrument master
func (c *HTTPClient) FetchInstruments(ctx context.Context) ([]Instrument, error) {
	observ.Log("broker_fetch_instruments", nil)
	var out []Instrument
	if err := c.getArray(ctx, "instruments", "/instruments", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchPositions downloads current positions as loose rows
func (c *HTTPClient) FetchPositions(ctx context.Context) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.getArray(ctx, "positions", "/positions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitOrder posts one order. It is never retried.
func (c *HTTPClient) SubmitOrder(ctx context.Context, payload map[string]any) (map[string]any, error) {
	const op = "orders"
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewDecodeError(op, "encode order payload", err)
	}
	observ.Log("broker_place_order", map[string]any{"payload": payload})

	raw, err := c.do(ctx, op, http.MethodPost, "/orders", body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, NewDecodeError(op, "order response is not a JSON object", err)
	}
	return out, nil
}

// getArray GETs path with retries and decodes a JSON array into dst.
func (c *HTTPClient) getArray(ctx context.Context, op, path string, dst any) error {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.Backoff * time.Duration(1<<(attempt-1))
			if err := c.sleep(ctx, backoff); err != nil {
				return NewNetworkError(op, "retry wait cancelled", err)
			}
		}

		raw, err := c.do(ctx, op, http.MethodGet, path, nil)
		if err == nil {
			trimmed := bytes.TrimSpace(raw)
			if len(trimmed) == 0 || trimmed[0] != '[' {
				return NewDecodeError(op, "expected a JSON array", nil)
			}
			if err := json.Unmarshal(trimmed, dst); err != nil {
				return NewDecodeError(op, "invalid array payload", err)
			}
			return nil
		}

		lastErr = err
		var be *Error
		if !errors.As(err, &be) || !be.Retryable() {
			return err
		}
		observ.Warn("broker_retry", map[string]any{"op": op, "attempt": attempt + 1, "error": err.Error()})
	}
	return lastErr
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, NewNetworkError(op, "rate limit wait cancelled", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, NewNetworkError(op, "failed to create request", err)
	}
	req.Header.Set("ClientID", c.config.ClientID)
	req.Header.Set("access-token", c.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observ.Observe("broker_request_ms", float64(time.Since(start).Milliseconds()), map[string]string{"op": op})
	if err != nil {
		observ.IncCounter("broker_requests_total", map[string]string{"op": op, "outcome": "network_error"})
		return nil, NewNetworkError(op, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observ.IncCounter("broker_requests_total", map[string]string{"op": op, "outcome": "network_error"})
		return nil, NewNetworkError(op, "read body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		observ.IncCounter("broker_requests_total", map[string]string{"op": op, "outcome": "rate_limited"})
		return nil, NewRateLimitError(op, "API rate limit exceeded")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		observ.IncCounter("broker_requests_total", map[string]string{"op": op, "outcome": "http_error"})
		return nil, NewStatusError(op, resp.StatusCode, truncate(string(raw), 256))
	}
	observ.IncCounter("broker_requests_total", map[string]string{"op": op, "outcome": "ok"})
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
