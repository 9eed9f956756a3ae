package console

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/broadcast"
	consoleerrors "agentconsole/internal/errors"
	"agentconsole/internal/observability"
	"agentconsole/internal/runclient"
	"agentconsole/internal/runcontroller"
	"agentconsole/internal/simulator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testSimulator(delay time.Duration) simulator.Config {
	return simulator.Config{
		MinSteps:         2,
		MaxSteps:         2,
		MinStepDelay:     delay,
		MaxStepDelay:     delay,
		RetryProbability: 0.2,
	}
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server, *runclient.Client) {
	t.Helper()
	if opts.Context.granted == nil {
		opts.Context = NewContext("tester", "test", false)
	}
	if opts.Simulator.MaxSteps == 0 {
		opts.Simulator = testSimulator(time.Hour)
	}
	opts.Seed = 1

	srv, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})

	client, err := runclient.New(runclient.Config{BaseURL: ts.URL, HTTPClient: ts.Client()})
	require.NoError(t, err)
	return srv, ts, client
}

func requireAPIError(t *testing.T, err error, status int) *consoleerrors.APIError {
	t.Helper()
	var apiErr *consoleerrors.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, status, apiErr.HTTPStatus)
	assert.Equal(t, status, apiErr.Code)
	return apiErr
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	_, _, client := newTestServer(t, Options{})
	ctx := context.Background()

	id, err := client.Submit(ctx, "find cheap flights")
	require.NoError(t, err)
	require.Len(t, id, 8)

	payload, err := client.Status(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, payload.Status)
	assert.Equal(t, agentrun.StatusRunning, *payload.Status)
	require.NotNil(t, payload.ChatHistory)
	assert.Equal(t, "find cheap flights", (*payload.ChatHistory)[0].Content)

	require.NoError(t, client.Pause(ctx, id))
	requireAPIError(t, client.Pause(ctx, id), http.StatusConflict)
	require.NoError(t, client.Resume(ctx, id))
	requireAPIError(t, client.Resume(ctx, id), http.StatusConflict)

	require.NoError(t, client.Stop(ctx, id))
	require.Eventually(t, func() bool {
		p, err := client.Status(ctx, id)
		return err == nil && p.Status != nil && *p.Status == agentrun.StatusStopped
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		record, err := client.Task(ctx, id)
		return err == nil && record.Status == agentrun.TaskCancelled && record.EndTime != ""
	}, 2*time.Second, 10*time.Millisecond)

	// Stop stays idempotent once the run has finished.
	require.NoError(t, client.Stop(ctx, id))
	requireAPIError(t, client.Pause(ctx, id), http.StatusConflict)
}

func TestUnknownRunAndBadInput(t *testing.T) {
	_, ts, client := newTestServer(t, Options{})
	ctx := context.Background()

	apiErr := requireAPIError(t, func() error { _, err := client.Status(ctx, "missing"); return err }(), http.StatusNotFound)
	assert.Equal(t, "Agent run not found", apiErr.Message)
	requireAPIError(t, client.Stop(ctx, "missing"), http.StatusNotFound)
	requireAPIError(t, client.Resume(ctx, "missing"), http.StatusNotFound)

	_, err := client.Submit(ctx, "   ")
	requireAPIError(t, err, http.StatusBadRequest)

	resp, err := http.Post(ts.URL+"/api/agent/run", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/nowhere")
	require.NoError(t, err)
	var env agentrun.Envelope[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func TestQuickRunsLeaveLiveSet(t *testing.T) {
	cfg := testSimulator(time.Millisecond)
	cfg.MinSteps, cfg.MaxSteps = 1, 1
	srv, _, client := newTestServer(t, Options{Simulator: cfg})
	ctx := context.Background()

	ids := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		id, err := client.Submit(ctx, "quick lookup")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.Eventually(t, func() bool {
		return srv.Store().LiveCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	for _, id := range ids {
		_, live := srv.Store().Live(id)
		assert.False(t, live, id)
		payload, err := client.Status(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, payload.Status)
		assert.Equal(t, agentrun.StatusCompleted, *payload.Status)
	}
}

func TestControllerFollowsRunToCompletion(t *testing.T) {
	_, _, client := newTestServer(t, Options{Simulator: testSimulator(time.Millisecond)})

	ctrl := runcontroller.New(client, runcontroller.Options{PollInterval: 10 * time.Millisecond})
	defer ctrl.Close()

	id, err := ctrl.Submit(context.Background(), "summarise the front page")
	require.NoError(t, err)

	select {
	case <-ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("controller never observed a terminal status")
	}

	view := ctrl.Snapshot()
	assert.Equal(t, id, view.TaskID)
	assert.Equal(t, agentrun.StatusCompleted, view.Status)
	assert.Equal(t, 2, view.Metrics.CurrentStep)
	assert.Equal(t, 2, view.Metrics.MaxSteps)
	require.Len(t, view.Transcript, 5)
	assert.Contains(t, view.Transcript[4].Content, "**Task completed**")
	assert.False(t, view.Polling)
}

func TestTaskHistoryEndpoints(t *testing.T) {
	_, _, client := newTestServer(t, Options{SeedDemo: true})
	ctx := context.Background()

	page, err := client.Tasks(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, DemoTaskCount, page.Total)
	assert.Len(t, page.List, defaultPageSize)

	stats, err := client.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, DemoTaskCount, stats.TotalTasks)
	assert.Equal(t, 10, stats.CompletedTasks)
	assert.Equal(t, 20.0, stats.SuccessRate)

	analysis, err := client.TaskAnalysis(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, analysis.SuccessCount)
	assert.Equal(t, 10, analysis.FailedCount)
	assert.Len(t, analysis.DurationDistribution, 5)

	trend, err := client.TokenTrend(ctx, 4)
	require.NoError(t, err)
	assert.Len(t, trend.Trends, 4)

	require.NoError(t, client.StopTask(ctx, "3"))
	record, err := client.Task(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, agentrun.TaskCancelled, record.Status)

	apiErr := requireAPIError(t, client.StopTask(ctx, "3"), http.StatusBadRequest)
	assert.Equal(t, "Task is not running", apiErr.Message)
	_, err = client.Task(ctx, "404")
	requireAPIError(t, err, http.StatusNotFound)
}

func TestSettingsRoundTripAndPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	_, _, client := newTestServer(t, Options{SettingsFile: path})
	ctx := context.Background()

	llm := agentrun.LLMSettings{Provider: "openai", ModelName: "gpt-4o-mini", Temperature: 0.3, APIKey: "sk-abcdefghijklmnop1234"}
	require.NoError(t, client.UpdateSettings(ctx, agentrun.SectionLLM, llm))

	raw, err := client.Settings(ctx, agentrun.SectionLLM)
	require.NoError(t, err)
	var shown agentrun.LLMSettings
	require.NoError(t, json.Unmarshal(raw, &shown))
	assert.Equal(t, "sk-abcde...1234", shown.APIKey)
	assert.Equal(t, "gpt-4o-mini", shown.ModelName)

	// Echoing the masked key back keeps the stored one.
	shown.Temperature = 0.9
	require.NoError(t, client.UpdateSettings(ctx, agentrun.SectionLLM, shown))
	stored, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-abcdefghijklmnop1234", stored.Snapshot().LLM.APIKey)
	assert.Equal(t, 0.9, stored.Snapshot().LLM.Temperature)

	shown.Temperature = 3
	requireAPIError(t, client.UpdateSettings(ctx, agentrun.SectionLLM, shown), http.StatusBadRequest)

	_, err = client.Settings(ctx, agentrun.SettingsSection("proxy"))
	requireAPIError(t, err, http.StatusNotFound)

	raw, err = client.Settings(ctx, agentrun.SectionBrowser)
	require.NoError(t, err)
	var browser agentrun.BrowserSettings
	require.NoError(t, json.Unmarshal(raw, &browser))
	assert.Equal(t, 1280, browser.WindowWidth)
}

func TestReadOnlyContextRejectsWrites(t *testing.T) {
	_, ts, client := newTestServer(t, Options{Context: NewContext("viewer", "test", true), SeedDemo: true})
	ctx := context.Background()

	_, err := client.Submit(ctx, "anything")
	requireAPIError(t, err, http.StatusForbidden)
	requireAPIError(t, client.StopTask(ctx, "3"), http.StatusForbidden)
	requireAPIError(t, client.UpdateSettings(ctx, agentrun.SectionAgent, agentrun.DefaultSettings().Agent), http.StatusForbidden)

	_, err = client.Tasks(ctx, 1, 5)
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/context")
	require.NoError(t, err)
	defer resp.Body.Close()
	var env agentrun.Envelope[contextResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "viewer", env.Data.Operator)
	assert.Empty(t, env.Data.Permissions)
}

func TestChannelAnnouncesTaskChanges(t *testing.T) {
	srv, ts, client := newTestServer(t, Options{})

	peer := broadcast.NewRegistry(nil)
	var changes atomic.Int32
	peer.Subscribe(broadcast.KeyTasksChanged, func(string) { changes.Add(1) })

	remote, err := broadcast.Dial(context.Background(), ts.URL, "", peer, nil)
	require.NoError(t, err)
	defer remote.Close()
	require.Eventually(t, func() bool { return srv.hub.PeerCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = client.Submit(context.Background(), "watch prices")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return changes.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	var settingsChanged atomic.Int32
	srv.Registry().Subscribe(broadcast.KeySettingsChanged, func(string) { settingsChanged.Add(1) })
	require.NoError(t, peer.Publish(context.Background(), broadcast.KeySettingsChanged))
	require.Eventually(t, func() bool { return settingsChanged.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestHealthAndMetrics(t *testing.T) {
	obs := observability.New(observability.DefaultConfig(), io.Discard)
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })
	_, ts, client := newTestServer(t, Options{Observability: obs, Version: "1.2.3"})

	_, err := client.Submit(context.Background(), "warm up metrics")
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	var health agentrun.Envelope[healthResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health.Data.Status)
	assert.Equal(t, "1.2.3", health.Data.Version)
	assert.Equal(t, 1, health.Data.LiveRuns)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "agentconsole")
}
