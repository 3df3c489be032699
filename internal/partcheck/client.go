// Package partcheck looks up part numbers against the production tracking
// API and reports whether a scanned part belongs to a known order.
package partcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ttelectronics/trackii-scan/internal/diaglog"
)

// Config configures the lookup client.
type Config struct {
	BaseURL        string
	Token          string // optional, sent as Bearer
	TimeoutSeconds int    // default 10
	Retries        int    // transient failures only; negative means 0
}

// Client calls the part lookup endpoint. Safe for concurrent use.
type Client struct {
	cfg         Config
	client      *http.Client
	backoffBase time.Duration // default 500ms; tests override to 1ms

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a lookup client.
func NewClient(cfg Config) *Client {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:         cfg,
		backoffBase: 500 * time.Millisecond,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentPartCheck
	}
	l.Log(entry)
}

// ErrNotFound is returned by Lookup when the API answers 404.
var ErrNotFound = errors.New("part not found")

// Lookup fetches the route information for partNumber. A 404 yields
// ErrNotFound; other non-2xx statuses yield *APIError.
func (c *Client) Lookup(ctx context.Context, partNumber string) (*PartInfo, error) {
	partNumber = strings.TrimSpace(partNumber)
	if partNumber == "" {
		return nil, errors.New("part number is required")
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.log(diaglog.LogEntry{
				Event:   diaglog.EventLookupRetry,
				Reason:  lastErr.Error(),
				Payload: map[string]interface{}{"attempt": attempt, "backoff_ms": backoff.Milliseconds()},
			})
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("lookup %s: %w", partNumber, ctx.Err())
			case <-time.After(backoff):
			}
		}

		info, err := c.doLookup(ctx, partNumber)
		if err == nil {
			return info, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("lookup %s: all %d retries exhausted: %w", partNumber, c.cfg.Retries, lastErr)
}

// Exists reports whether partNumber belongs to a known order. A response
// without an explicit found flag counts as found.
func (c *Client) Exists(ctx context.Context, partNumber string) (bool, error) {
	info, err := c.Lookup(ctx, partNumber)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsFound(), nil
}

func (c *Client) doLookup(ctx context.Context, partNumber string) (*PartInfo, error) {
	endpoint := c.cfg.BaseURL + "/api/scanner/part/" + url.PathEscape(partNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read response body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		return nil, &retryableError{err: newAPIError(resp.StatusCode, body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, newAPIError(resp.StatusCode, body)
	}

	var info PartInfo
	if len(strings.TrimSpace(string(body))) == 0 {
		return &info, nil
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}

// HealthStatus is the result of a HealthCheck.
type HealthStatus struct {
	OK      bool
	Message string
	Latency time.Duration
}

// HealthCheck probes the API base URL. Connection failures are reported in
// the status rather than as an error.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("create health request: %w", err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &HealthStatus{
			OK:      false,
			Message: fmt.Sprintf("health check failed: %v", err),
			Latency: latency,
		}, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		return &HealthStatus{
			OK:      false,
			Message: "unhealthy: " + newAPIError(resp.StatusCode, body).Error(),
			Latency: latency,
		}, nil
	}
	return &HealthStatus{OK: true, Message: "reachable", Latency: latency}, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

// retryableError wraps errors that should trigger a retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// backoff returns base * 2^(attempt-1) plus up to 25% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	base := c.backoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// truncate returns the first n bytes of body as a string.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
