package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorClassification(t *testing.T) {
	notFound := &APIError{HTTPStatus: http.StatusNotFound, Code: 404, Message: "Task not found"}
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsPermanent(notFound))
	assert.False(t, IsTransient(notFound))
	assert.Equal(t, "Task not found", FormatForUser(fmt.Errorf("status: %w", notFound)))

	unavailable := &APIError{HTTPStatus: http.StatusServiceUnavailable}
	assert.True(t, IsTransient(unavailable))
	assert.Equal(t, ErrorTypeTransient, GetErrorType(unavailable))

	envelopeOnly := &APIError{HTTPStatus: http.StatusOK, Code: 1, Message: "boom"}
	assert.Equal(t, 0, envelopeOnly.StatusCode())
	assert.Equal(t, "api error (code 1): boom", envelopeOnly.Error())
}

func TestStatusExtractedFromMessage(t *testing.T) {
	assert.True(t, IsTransient(errors.New("http status 503")))
	assert.True(t, IsPermanent(errors.New("HTTP 400: bad payload")))
	assert.False(t, IsTransient(errors.New("something 500 times")))
}

func TestExplicitWrappersWin(t *testing.T) {
	err := NewPermanentError(errors.New("connection refused"), "nope")
	assert.False(t, IsTransient(err))
	assert.Equal(t, "nope", FormatForUser(err))

	degraded := NewDegradedError(errors.New("x"), "later")
	assert.Equal(t, ErrorTypeDegraded, GetErrorType(degraded))
}

func TestFormatForUserConnectionRefused(t *testing.T) {
	msg := FormatForUser(errors.New("dial tcp 127.0.0.1:8080: connect: connection refused"))
	assert.Contains(t, msg, "agentconsole serve")
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return NewPermanentError(errors.New("bad"), "")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("flaky"), "")
		}
		return 42, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausts(t *testing.T) {
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}, func(context.Context) error {
		return NewTransientError(errors.New("flaky"), "")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestRetryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, DefaultRetryConfig(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, calculateBackoff(5, cfg))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("runs", CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: 10 * time.Second})
	cb.now = func() time.Time { return now }

	require.NoError(t, cb.Allow())
	cb.Mark(errors.New("fail"))
	cb.Mark(errors.New("fail"))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Allow()
	require.Error(t, err)
	assert.True(t, IsDegraded(err))

	now = now.Add(11 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.Mark(nil)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("runs", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	cb.Mark(errors.New("fail"))
	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Allow())
	cb.Mark(errors.New("fail again"))
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecuteMarksOutcome(t *testing.T) {
	cb := NewCircuitBreaker("exec", CircuitBreakerConfig{FailureThreshold: 1})
	err := cb.Execute(context.Background(), func(context.Context) error { return errors.New("x") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}
