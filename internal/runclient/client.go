// Package runclient talks to the console HTTP API.
package runclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agentconsole/internal/agentrun"
	consoleerrors "agentconsole/internal/errors"
	"agentconsole/internal/httpclient"
	"agentconsole/internal/logging"
)

const (
	defaultTimeout          = 10 * time.Second
	defaultMaxResponseBytes = 8 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	MaxResponseBytes int64
	Breaker          consoleerrors.CircuitBreakerConfig
	Logger           logging.Logger
	// HTTPClient overrides the breaker-guarded default. Tests use this.
	HTTPClient *http.Client
}

// Client is an HTTP client for the run API and the console's task, statistics
// and settings endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxBytes   int64
	logger     logging.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	logger := logging.OrNop(cfg.Logger)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}

	client := cfg.HTTPClient
	if client == nil {
		breaker := cfg.Breaker
		if breaker.FailureThreshold == 0 {
			breaker = consoleerrors.DefaultCircuitBreakerConfig()
		}
		client = httpclient.NewGuarded(timeout, logger, "console-api", breaker)
	}

	return &Client{
		baseURL:    base,
		httpClient: client,
		maxBytes:   maxBytes,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalised server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit creates a run and returns its task id.
func (c *Client) Submit(ctx context.Context, task string) (string, error) {
	resp, err := call[agentrun.SubmitResponse](ctx, c, http.MethodPost, "/api/agent/run", agentrun.SubmitRequest{Task: task})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.TaskID) == "" {
		return "", &consoleerrors.APIError{HTTPStatus: http.StatusOK, Message: "server returned an empty task id"}
	}
	return resp.TaskID, nil
}

// Status fetches the current status of a run. Status and the lifecycle
// commands below bypass the circuit breaker: a poller keeps its own cadence
// through outages and a stop always reaches the server.
func (c *Client) Status(ctx context.Context, taskID string) (agentrun.StatusPayload, error) {
	return call[agentrun.StatusPayload](httpclient.WithoutBreaker(ctx), c, http.MethodGet, runPath(taskID, "status"), nil)
}

// Stop asks the server to stop a run.
func (c *Client) Stop(ctx context.Context, taskID string) error {
	return c.command(ctx, taskID, "stop")
}

// Pause asks the server to pause a run.
func (c *Client) Pause(ctx context.Context, taskID string) error {
	return c.command(ctx, taskID, "pause")
}

// Resume asks the server to resume a paused run.
func (c *Client) Resume(ctx context.Context, taskID string) error {
	return c.command(ctx, taskID, "resume")
}

func (c *Client) command(ctx context.Context, taskID, action string) error {
	_, err := call[json.RawMessage](httpclient.WithoutBreaker(ctx), c, http.MethodPost, runPath(taskID, action), nil)
	return err
}

// Tasks lists one page of the task history.
func (c *Client) Tasks(ctx context.Context, page, pageSize int) (agentrun.TaskPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	return call[agentrun.TaskPage](ctx, c, http.MethodGet, "/api/tasks?"+q.Encode(), nil)
}

// Task fetches one history record.
func (c *Client) Task(ctx context.Context, id string) (agentrun.TaskRecord, error) {
	return call[agentrun.TaskRecord](ctx, c, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil)
}

// StopTask cancels a running task from the history view.
func (c *Client) StopTask(ctx context.Context, id string) error {
	_, err := call[json.RawMessage](ctx, c, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/stop", nil)
	return err
}

// Statistics fetches the dashboard totals.
func (c *Client) Statistics(ctx context.Context) (agentrun.Statistics, error) {
	return call[agentrun.Statistics](ctx, c, http.MethodGet, "/api/statistics", nil)
}

// TokenTrend fetches per-day token totals for the last days days.
func (c *Client) TokenTrend(ctx context.Context, days int) (agentrun.TokenTrend, error) {
	return call[agentrun.TokenTrend](ctx, c, http.MethodGet, "/api/statistics/token-trend?days="+strconv.Itoa(days), nil)
}

// TaskAnalysis fetches success counts and the duration distribution.
func (c *Client) TaskAnalysis(ctx context.Context) (agentrun.TaskAnalysis, error) {
	return call[agentrun.TaskAnalysis](ctx, c, http.MethodGet, "/api/statistics/task-analysis", nil)
}

// Settings fetches one settings section as raw JSON.
func (c *Client) Settings(ctx context.Context, section agentrun.SettingsSection) (json.RawMessage, error) {
	return call[json.RawMessage](ctx, c, http.MethodGet, "/api/config/"+string(section), nil)
}

// UpdateSettings replaces one settings section.
func (c *Client) UpdateSettings(ctx context.Context, section agentrun.SettingsSection, value any) error {
	_, err := call[json.RawMessage](ctx, c, http.MethodPost, "/api/config/"+string(section), value)
	return err
}

func runPath(taskID, action string) string {
	return "/api/agent/run/" + url.PathEscape(taskID) + "/" + action
}

// call issues a request and decodes the envelope. A non-2xx status or a
// non-zero code yields *errors.APIError.
func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T
	logger := logging.FromContext(ctx, c.logger)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	raw, err := httpclient.ReadBody(resp, c.maxBytes)
	if httpclient.IsResponseTooLarge(err) {
		logger.Warn("%v", err)
		return zero, err
	}
	if err != nil {
		return zero, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	var env agentrun.Envelope[T]
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &consoleerrors.APIError{HTTPStatus: resp.StatusCode, Code: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
		}
		logger.Debug("%s %s rejected: %v", method, path, apiErr)
		return zero, apiErr
	}
	if decodeErr != nil {
		return zero, fmt.Errorf("decode %s %s: %w", method, path, decodeErr)
	}
	if !env.OK() {
		return zero, &consoleerrors.APIError{HTTPStatus: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	return env.Data, nil
}
