package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	consoleerrors "agentconsole/internal/errors"
	"agentconsole/internal/logging"
)

type breakerExemptKey struct{}

// WithoutBreaker marks requests made with ctx as exempt from the client's
// circuit breaker. Exempt requests always reach the server and their outcome
// is not counted toward the breaker state.
//
// The console uses this for run status polls and run lifecycle commands: the
// poller already paces its own retries, and a stop must never fail locally
// while the run keeps going on the server.
func WithoutBreaker(ctx context.Context) context.Context {
	return context.WithValue(ctx, breakerExemptKey{}, true)
}

func breakerExempt(ctx context.Context) bool {
	exempt, _ := ctx.Value(breakerExemptKey{}).(bool)
	return exempt
}

type guardedTransport struct {
	base    http.RoundTripper
	breaker *consoleerrors.CircuitBreaker
	logger  logging.Logger
}

// NewGuarded builds a logging HTTP client whose requests pass through a
// circuit breaker named name, except those sent with a WithoutBreaker context.
func NewGuarded(timeout time.Duration, logger logging.Logger, name string, config consoleerrors.CircuitBreakerConfig) *http.Client {
	client := New(timeout, logger)
	client.Transport = Guard(client.Transport, name, config, logger)
	return client
}

// Guard wraps base with a circuit breaker. A nil base uses http.DefaultTransport.
func Guard(base http.RoundTripper, name string, config consoleerrors.CircuitBreakerConfig, logger logging.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if name == "" {
		name = "console-api"
	}
	return &guardedTransport{
		base:    base,
		breaker: consoleerrors.NewCircuitBreaker(name, config),
		logger:  logging.OrNop(logger),
	}
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if breakerExempt(req.Context()) {
		return t.base.RoundTrip(req)
	}
	if err := t.breaker.Allow(); err != nil {
		t.logger.Debug("%s %s rejected, circuit open", req.Method, req.URL.Path)
		return nil, err
	}

	resp, err := t.base.RoundTrip(req)
	switch {
	case errors.Is(err, context.Canceled):
		t.breaker.Mark(nil)
	case err != nil:
		t.breaker.Mark(err)
	case isBreakerFailureStatus(resp.StatusCode):
		t.breaker.Mark(fmt.Errorf("http status %d", resp.StatusCode))
	default:
		t.breaker.Mark(nil)
	}
	return resp, err
}

func isBreakerFailureStatus(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}
