package runclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentconsole/internal/agentrun"
	consoleerrors "agentconsole/internal/errors"
	"agentconsole/internal/httpclient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "localhost:8080"})
	assert.Error(t, err)
}

func TestSubmitPostsTask(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/agent/run", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req agentrun.SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "open github", req.Task)
		writeJSON(w, http.StatusOK, agentrun.Success(agentrun.SubmitResponse{TaskID: "ab12cd34"}))
	})

	id, err := client.Submit(context.Background(), "open github")
	require.NoError(t, err)
	assert.Equal(t, "ab12cd34", id)
}

func TestSubmitNonZeroCodeIsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"code": 1, "message": "queue full"})
	})

	_, err := client.Submit(context.Background(), "x")
	var apiErr *consoleerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 1, apiErr.Code)
	assert.Equal(t, "queue full", apiErr.Message)
}

func TestSubmitEmptyTaskIDIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, agentrun.Success(agentrun.SubmitResponse{}))
	})
	_, err := client.Submit(context.Background(), "x")
	assert.Error(t, err)
}

func TestStatusDecodesPartialPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agent/run/ab12cd34/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"code":0,"message":"success","data":{"status":"paused","currentStep":2}}`))
	})

	payload, err := client.Status(context.Background(), "ab12cd34")
	require.NoError(t, err)
	m := payload.Metrics(agentrun.StatusRunning)
	assert.Equal(t, agentrun.StatusPaused, m.Status)
	assert.Equal(t, 2, m.CurrentStep)
}

func TestNotFoundCarriesEnvelopeMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "message": "Agent run not found"})
	})

	err := client.Stop(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, consoleerrors.IsNotFound(err))
	assert.Equal(t, "Agent run not found", consoleerrors.FormatForUser(err))
}

func TestNonJSONErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	err := client.Pause(context.Background(), "ab12cd34")
	var apiErr *consoleerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.HTTPStatus)
	assert.True(t, consoleerrors.IsTransient(err))
}

func TestLifecyclePaths(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"code": 0, "message": "ok"})
	})

	ctx := context.Background()
	require.NoError(t, client.Stop(ctx, "a b"))
	require.NoError(t, client.Pause(ctx, "id1"))
	require.NoError(t, client.Resume(ctx, "id1"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/api/agent/run/a b/stop", "/api/agent/run/id1/pause", "/api/agent/run/id1/resume"}, paths)
}

func TestResponseLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, agentrun.Success(agentrun.SubmitResponse{TaskID: "0123456789"}))
	}))
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL, MaxResponseBytes: 8, HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), "x")
	assert.True(t, httpclient.IsResponseTooLarge(err))
}

func TestRunCallsBypassBreakerOnDefaultTransport(t *testing.T) {
	var (
		mu          sync.Mutex
		statusCalls int
		stopCalls   int
		taskCalls   int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/api/agent/run/ab12cd34/status":
			statusCalls++
			if statusCalls <= 6 {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"code": 503, "message": "busy"})
				return
			}
			writeJSON(w, http.StatusOK, agentrun.Success(agentrun.StatusPayload{Status: statusPtr(agentrun.StatusCompleted)}))
		case "/api/agent/run/ab12cd34/stop":
			stopCalls++
			writeJSON(w, http.StatusOK, map[string]any{"code": 0, "message": "ok"})
		case "/api/tasks":
			taskCalls++
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"code": 503, "message": "busy"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	// Six failed polls exceed the default threshold of five.
	for i := 0; i < 6; i++ {
		_, err := client.Status(ctx, "ab12cd34")
		requireStatus(t, err, http.StatusServiceUnavailable)
	}
	require.NoError(t, client.Stop(ctx, "ab12cd34"))
	payload, err := client.Status(ctx, "ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, agentrun.StatusCompleted, *payload.Status)

	// History queries stay behind the breaker.
	for i := 0; i < 5; i++ {
		_, err := client.Tasks(ctx, 1, 10)
		requireStatus(t, err, http.StatusServiceUnavailable)
	}
	_, err = client.Tasks(ctx, 1, 10)
	assert.True(t, consoleerrors.IsDegraded(err), "expected open breaker, got %v", err)

	// An open breaker still lets lifecycle commands through.
	require.NoError(t, client.Stop(ctx, "ab12cd34"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 7, statusCalls)
	assert.Equal(t, 2, stopCalls)
	assert.Equal(t, 5, taskCalls)
}

func statusPtr(s agentrun.RunStatus) *agentrun.RunStatus { return &s }

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr *consoleerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, status, apiErr.HTTPStatus)
}

func TestTasksQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("pageSize"))
		writeJSON(w, http.StatusOK, agentrun.Success(agentrun.TaskPage{Total: 12, Page: 2, PageSize: 5}))
	})

	page, err := client.Tasks(context.Background(), 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
}

func TestUpdateSettingsSendsBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/config/llm", r.URL.Path)
		var body agentrun.LLMSettings
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.ModelName)
		writeJSON(w, http.StatusOK, map[string]any{"code": 0, "message": "updated"})
	})

	err := client.UpdateSettings(context.Background(), agentrun.SectionLLM, agentrun.LLMSettings{Provider: "openai", ModelName: "gpt-4o-mini"})
	require.NoError(t, err)
}
