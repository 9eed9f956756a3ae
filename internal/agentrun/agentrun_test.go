package agentrun

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusClassification(t *testing.T) {
	for _, s := range []RunStatus{StatusCompleted, StatusStopped, StatusError} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsActive(), s)
	}
	for _, s := range []RunStatus{StatusIdle, StatusRunning, StatusPaused} {
		assert.False(t, s.IsTerminal(), s)
	}
	assert.True(t, StatusRunning.IsActive())
	assert.True(t, StatusPaused.IsActive())
	assert.False(t, RunStatus("bogus").Valid())
}

func TestParseRunStatus(t *testing.T) {
	s, err := ParseRunStatus(" Paused ")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, s)

	_, err = ParseRunStatus("finished")
	assert.Error(t, err)
}

func TestStatusPayloadToleratesPartialFields(t *testing.T) {
	var env Envelope[StatusPayload]
	require.NoError(t, json.Unmarshal([]byte(`{"code":0,"data":{"status":"running","currentStep":3,"totalTokens":1200}}`), &env))
	require.True(t, env.OK())

	m := env.Data.Metrics(StatusIdle)
	assert.Equal(t, StatusRunning, m.Status)
	assert.Equal(t, 3, m.CurrentStep)
	assert.Equal(t, 0, m.MaxSteps)
	assert.Equal(t, 1200, m.TotalTokens)
	assert.Zero(t, m.AvgStepDuration)
	assert.Nil(t, env.Data.ChatHistory)
	assert.Nil(t, env.Data.Screenshot)
}

func TestStatusPayloadUnknownStatusKeepsFallback(t *testing.T) {
	var p StatusPayload
	require.NoError(t, json.Unmarshal([]byte(`{"status":"warming-up"}`), &p))
	assert.Equal(t, StatusPaused, p.Metrics(StatusPaused).Status)
}

func TestRunSnapshotRoundTripsThroughPayload(t *testing.T) {
	shot := "aGVsbG8="
	snap := RunSnapshot{
		TaskID: "ab12cd34",
		Task:   "search",
		ExecutionMetrics: ExecutionMetrics{
			Status:      StatusCompleted,
			CurrentStep: 5,
			MaxSteps:    5,
			TotalTokens: 900,
		},
		Screenshot:  &shot,
		ChatHistory: []ChatMessage{{Role: RoleUser, Content: "search", Timestamp: "10:00:00"}},
		StartedAt:   time.Unix(0, 0),
	}

	raw, err := json.Marshal(Success(snap))
	require.NoError(t, err)

	var env Envelope[StatusPayload]
	require.NoError(t, json.Unmarshal(raw, &env))
	m := env.Data.Metrics(StatusIdle)
	assert.Equal(t, snap.ExecutionMetrics, m)
	require.NotNil(t, env.Data.ChatHistory)
	assert.Equal(t, snap.ChatHistory, *env.Data.ChatHistory)
	require.NotNil(t, env.Data.Screenshot)
	assert.Equal(t, shot, *env.Data.Screenshot)
	assert.Equal(t, snap.ExecutionMetrics, snap.Payload().Metrics(StatusIdle))
}

func TestCloneIsDeep(t *testing.T) {
	snap := RunSnapshot{ChatHistory: []ChatMessage{{Role: RoleUser, Content: "a"}}}
	clone := snap.Clone()
	clone.ChatHistory[0].Content = "b"
	assert.Equal(t, "a", snap.ChatHistory[0].Content)
}

func TestNewMessageUsesClockLayout(t *testing.T) {
	at := time.Date(2024, 5, 1, 13, 4, 5, 0, time.Local)
	msg := NewMessage(RoleUser, "go", at)
	assert.Equal(t, "13:04:05", msg.Timestamp)
	assert.Equal(t, RoleUser, msg.Role)
}

func TestProgress(t *testing.T) {
	assert.Zero(t, DefaultMetrics().Progress())
	assert.InDelta(t, 0.5, ExecutionMetrics{CurrentStep: 2, MaxSteps: 4}.Progress(), 1e-9)
	assert.Equal(t, 1.0, ExecutionMetrics{CurrentStep: 9, MaxSteps: 4}.Progress())
}

func TestTaskStatusFor(t *testing.T) {
	assert.Equal(t, TaskCompleted, TaskStatusFor(StatusCompleted))
	assert.Equal(t, TaskFailed, TaskStatusFor(StatusError))
	assert.Equal(t, TaskCancelled, TaskStatusFor(StatusStopped))
	assert.Equal(t, TaskRunning, TaskStatusFor(StatusPaused))
}

func TestSettingsValidation(t *testing.T) {
	defaults := DefaultSettings()
	require.NoError(t, defaults.Agent.Validate())
	require.NoError(t, defaults.Browser.Validate())
	require.NoError(t, defaults.LLM.Validate())

	llm := defaults.LLM
	llm.Temperature = 3
	assert.Error(t, llm.Validate())

	browser := defaults.Browser
	browser.WindowWidth = 0
	assert.Error(t, browser.Validate())

	_, err := ParseSettingsSection("gpu")
	assert.Error(t, err)
	section, err := ParseSettingsSection("LLM")
	require.NoError(t, err)
	assert.Equal(t, SectionLLM, section)
}
