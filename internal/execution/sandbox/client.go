// Package sandbox talks to a Piston-compatible code execution API over HTTP.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Sentinel errors callers branch on. Boundaries wrap them into coded
// errors; inside the execution pipeline they stay as-is.
var (
	// ErrUnavailable means the sandbox could not be reached or kept
	// answering with non-200 responses after all retries.
	ErrUnavailable = errors.New("execution sandbox unavailable")

	// ErrInvalidOutput means the sandbox answered 200 but the body
	// could not be decoded. It is never retried.
	ErrInvalidOutput = errors.New("execution sandbox returned invalid output")
)

// Stage is one phase (compile or run) of a sandbox execution.
// Stdout and Stderr stay pointers so an absent field is distinguishable
// from an empty one.
type Stage struct {
	Stdout   *string  `json:"stdout"`
	Stderr   *string  `json:"stderr"`
	Status   string   `json:"status"`
	Code     *int     `json:"code"`
	WallTime *float64 `json:"wall_time"`
}

// Stage status codes reported by the sandbox.
const (
	StatusTimeout      = "TO"
	StatusSignal       = "SG"
	StatusRuntimeError = "RE"
)

// Payload is the decoded sandbox response. Compile is absent for
// interpreted languages.
type Payload struct {
	Compile *Stage `json:"compile"`
	Run     *Stage `json:"run"`
}

// Config holds sandbox client settings.
type Config struct {
	BaseURL  string
	Language string
	Version  string

	RunTimeout     time.Duration
	CompileTimeout time.Duration

	RunMemoryLimitBytes     int64
	CompileMemoryLimitBytes int64

	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries int
	RetryDelay time.Duration

	HealthCheckTTL time.Duration
	HTTPTimeout    time.Duration
}

// Client executes code through a Piston-style API. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	lastHealthy time.Time
}

// NewClient creates a sandbox client.
func NewClient(cfg Config) *Client {
	return NewClientWithClock(cfg, time.Now)
}

// NewClientWithClock creates a sandbox client with an injectable clock.
func NewClientWithClock(cfg Config, now func() time.Time) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		now:        now,
	}
}

type executeRequest struct {
	Language           string        `json:"language"`
	Version            string        `json:"version"`
	Files              []executeFile `json:"files"`
	Stdin              string        `json:"stdin"`
	Args               []string      `json:"args"`
	RunTimeout         int64         `json:"run_timeout"`
	CompileTimeout     int64         `json:"compile_timeout"`
	RunMemoryLimit     int64         `json:"run_memory_limit"`
	CompileMemoryLimit int64         `json:"compile_memory_limit"`
}

type executeFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Execute runs the source through the sandbox. Transport errors and
// non-200 answers are retried MaxRetries times with a fixed delay and
// end in ErrUnavailable; a 200 with an undecodable body ends in
// ErrInvalidOutput immediately.
func (c *Client) Execute(ctx context.Context, source string) (Payload, error) {
	if err := c.ensureAvailable(ctx); err != nil {
		return Payload{}, err
	}

	body, err := json.Marshal(executeRequest{
		Language:           c.cfg.Language,
		Version:            c.cfg.Version,
		Files:              []executeFile{{Name: "main.py", Content: source}},
		Stdin:              "",
		Args:               []string{},
		RunTimeout:         c.cfg.RunTimeout.Milliseconds(),
		CompileTimeout:     c.cfg.CompileTimeout.Milliseconds(),
		RunMemoryLimit:     c.cfg.RunMemoryLimitBytes,
		CompileMemoryLimit: c.cfg.CompileMemoryLimitBytes,
	})
	if err != nil {
		return Payload{}, fmt.Errorf("marshal execute request failed: %w", err)
	}

	retries := c.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		payload, retryable, err := c.postExecute(ctx, body)
		if err == nil {
			return payload, nil
		}
		if !retryable {
			return Payload{}, err
		}
		lastErr = err

		if attempt < retries {
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return Payload{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}
	}
	return Payload{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// postExecute performs one attempt. The second return value reports
// whether the failure may be retried.
func (c *Client) postExecute(ctx context.Context, body []byte) (Payload, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v2/execute", bytes.NewReader(body))
	if err != nil {
		return Payload{}, false, fmt.Errorf("build execute request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Payload{}, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Payload{}, true, fmt.Errorf("execute returned status %d", resp.StatusCode)
	}

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Payload{}, false, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return payload, false, nil
}

// ensureAvailable checks sandbox health at most once per TTL. A failed
// check fails fast without touching the execute endpoint.
func (c *Client) ensureAvailable(ctx context.Context) error {
	c.mu.Lock()
	fresh := c.now().Sub(c.lastHealthy) < c.cfg.HealthCheckTTL
	c.mu.Unlock()
	if fresh {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/v2/runtimes", nil)
	if err != nil {
		return fmt.Errorf("build runtimes request failed: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: runtimes returned status %d", ErrUnavailable, resp.StatusCode)
	}

	c.mu.Lock()
	c.lastHealthy = c.now()
	c.mu.Unlock()
	return nil
}
