package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentconsole/internal/console"
	"agentconsole/internal/simulator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startConsole(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	srv, err := console.New(console.Options{
		Context: console.NewContext("tester", "test", false),
		Simulator: simulator.Config{
			MinSteps:     2,
			MaxSteps:     2,
			MinStepDelay: 5 * time.Millisecond,
			MaxStepDelay: 5 * time.Millisecond,
		},
		SeedDemo: true,
		Seed:     1,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return ts.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionSkipsConfig(t *testing.T) {
	out, err := execute(t, "version", "--config", "/does/not/exist.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "agentconsole dev")
}

func TestTasksListsSeededHistory(t *testing.T) {
	base := startConsole(t)

	out, err := execute(t, "tasks", "--base-url", base, "--page-size", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "page 1 of 10, 50 tasks")

	out, err = execute(t, "tasks", "7", "--base-url", base)
	require.NoError(t, err)
	assert.Contains(t, out, "#7")
}

func TestStatsJSON(t *testing.T) {
	base := startConsole(t)

	out, err := execute(t, "stats", "--base-url", base, "--json", "--days", "3")
	require.NoError(t, err)

	var decoded struct {
		Statistics struct {
			TotalTasks int `json:"totalTasks"`
		} `json:"statistics"`
		TokenTrend struct {
			Trends []json.RawMessage `json:"trends"`
		} `json:"tokenTrend"`
		TaskAnalysis struct {
			DurationDistribution []json.RawMessage `json:"durationDistribution"`
		} `json:"taskAnalysis"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 50, decoded.Statistics.TotalTasks)
	assert.Len(t, decoded.TokenTrend.Trends, 3)
	assert.Len(t, decoded.TaskAnalysis.DurationDistribution, 5)
}

func TestRunFollowsToCompletion(t *testing.T) {
	base := startConsole(t)

	out, err := execute(t, "run", "--base-url", base, "--poll-interval", "20ms", "compare", "laptop", "prices")
	require.NoError(t, err)
	assert.Contains(t, out, "compare laptop prices")
	assert.Contains(t, out, "Step 1/2")
	assert.Contains(t, out, "Task completed")
	assert.Contains(t, out, "steps 2/2")
}

func TestRunRequiresTask(t *testing.T) {
	base := startConsole(t)
	_, err := execute(t, "run", "--base-url", base)
	require.Error(t, err)
}

func TestStatusOfUnknownRunFails(t *testing.T) {
	base := startConsole(t)
	_, err := execute(t, "status", "missing", "--base-url", base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Agent run not found")
}

func TestSettingsSetAndGet(t *testing.T) {
	base := startConsole(t)

	out, err := execute(t, "settings", "set", "llm", "temperature=0.3", "modelname=gpt-4o-mini", "--base-url", base)
	require.NoError(t, err)
	assert.Contains(t, out, "llm settings updated")

	out, err = execute(t, "settings", "get", "llm", "--base-url", base)
	require.NoError(t, err)
	assert.Contains(t, out, "temperature: 0.3")
	assert.Contains(t, out, "modelName: gpt-4o-mini")

	_, err = execute(t, "settings", "get", "network", "--base-url", base)
	require.Error(t, err)
}

func TestConfigShowReportsOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := execute(t, "config", "show", "--sources", "--base-url", "http://example.test:9000")
	require.NoError(t, err)
	assert.Contains(t, out, "base_url: http://example.test:9000")
	assert.Contains(t, out, "client.base_url")
	assert.Contains(t, out, "override")
}

func TestApplyAssignments(t *testing.T) {
	values := map[string]any{"maxSteps": 100, "agentType": "custom"}
	require.NoError(t, applyAssignments(values, []string{"maxsteps=20", "useVision=false", "agentType=org"}))
	assert.Equal(t, 20, values["maxSteps"])
	assert.Equal(t, false, values["useVision"])
	assert.Equal(t, "org", values["agentType"])

	assert.Error(t, applyAssignments(values, []string{"novalue"}))
}

func TestExitCodeErrorUnwraps(t *testing.T) {
	inner := errors.New("run failed")
	err := error(&ExitCodeError{Code: 2, Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "run failed", err.Error())
}
