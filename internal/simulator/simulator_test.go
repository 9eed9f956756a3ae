package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentconsole/internal/agentrun"
)

func fastConfig(steps int) Config {
	return Config{
		MinSteps:         steps,
		MaxSteps:         steps,
		MinStepDelay:     time.Millisecond,
		MaxStepDelay:     2 * time.Millisecond,
		RetryProbability: 0.5,
	}
}

func slowConfig(steps int) Config {
	cfg := fastConfig(steps)
	cfg.MinStepDelay = time.Hour
	cfg.MaxStepDelay = time.Hour
	return cfg
}

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("run %s did not finish", run.ID())
	}
}

func TestRunCompletes(t *testing.T) {
	var (
		mu       sync.Mutex
		finished []agentrun.RunSnapshot
	)
	sim, err := New(fastConfig(3), Options{
		Seed: 42,
		OnFinish: func(snap agentrun.RunSnapshot) {
			mu.Lock()
			defer mu.Unlock()
			finished = append(finished, snap)
		},
	})
	require.NoError(t, err)

	run, err := sim.Start(context.Background(), "  search for flights  ")
	require.NoError(t, err)
	require.Len(t, run.ID(), 8)
	waitDone(t, run)
	sim.Wait()

	snap := run.Snapshot()
	assert.Equal(t, agentrun.StatusCompleted, snap.Status)
	assert.Equal(t, "search for flights", snap.Task)
	assert.Equal(t, 3, snap.CurrentStep)
	assert.Equal(t, 3, snap.MaxSteps)
	assert.Equal(t, snap.PromptTokens+snap.CompletionTokens, snap.TotalTokens)
	assert.Equal(t, snap.SystemRetries+snap.BusinessRetries, snap.TotalRetries)
	assert.NotNil(t, snap.FinishedAt)

	// user, init, three steps, summary
	require.Len(t, snap.ChatHistory, 6)
	assert.Equal(t, agentrun.RoleUser, snap.ChatHistory[0].Role)
	assert.Equal(t, "search for flights", snap.ChatHistory[0].Content)
	assert.Contains(t, snap.ChatHistory[2].Content, "**Step 1/3**")
	assert.Contains(t, snap.ChatHistory[5].Content, "**Task completed**")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, finished, 1)
	assert.Equal(t, run.ID(), finished[0].TaskID)
}

func TestRunStopAppendsSystemMessage(t *testing.T) {
	sim, err := New(slowConfig(5), Options{Seed: 7})
	require.NoError(t, err)

	run, err := sim.Start(context.Background(), "book a table")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return run.Snapshot().CurrentStep == 1 }, 2*time.Second, 5*time.Millisecond)

	run.Stop()
	run.Stop()
	waitDone(t, run)

	snap := run.Snapshot()
	assert.Equal(t, agentrun.StatusStopped, snap.Status)
	last := snap.ChatHistory[len(snap.ChatHistory)-1]
	assert.Equal(t, agentrun.RoleSystem, last.Role)
	assert.Equal(t, StoppedMessage, last.Content)
	assert.Equal(t, 1, snap.CurrentStep)

	assert.ErrorIs(t, run.Pause(), ErrNotRunning)
	assert.ErrorIs(t, run.Resume(), ErrNotPaused)
}

func TestRunPauseHoldsProgress(t *testing.T) {
	cfg := fastConfig(4)
	cfg.MinStepDelay = 10 * time.Millisecond
	cfg.MaxStepDelay = 10 * time.Millisecond
	sim, err := New(cfg, Options{Seed: 3})
	require.NoError(t, err)

	run, err := sim.Start(context.Background(), "compare prices")
	require.NoError(t, err)
	require.NoError(t, run.Pause())
	assert.ErrorIs(t, run.Pause(), ErrNotRunning)

	held := run.Snapshot().CurrentStep
	time.Sleep(50 * time.Millisecond)
	snap := run.Snapshot()
	assert.Equal(t, agentrun.StatusPaused, snap.Status)
	assert.LessOrEqual(t, snap.CurrentStep, held+1)
	select {
	case <-run.Done():
		t.Fatalf("paused run finished")
	default:
	}

	require.NoError(t, run.Resume())
	assert.ErrorIs(t, run.Resume(), ErrNotPaused)
	waitDone(t, run)
	assert.Equal(t, agentrun.StatusCompleted, run.Snapshot().Status)
}

func TestRunContextCancelEndsWithError(t *testing.T) {
	sim, err := New(slowConfig(5), Options{Seed: 11})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	run, err := sim.Start(ctx, "watch the news")
	require.NoError(t, err)
	cancel()
	waitDone(t, run)

	snap := run.Snapshot()
	assert.Equal(t, agentrun.StatusError, snap.Status)
	assert.Contains(t, snap.ChatHistory[len(snap.ChatHistory)-1].Content, "aborted")
}

func TestOnStartSeesRunBeforeItFinishes(t *testing.T) {
	var (
		mu       sync.Mutex
		started  []string
		finished []string
	)
	sim, err := New(fastConfig(1), Options{
		Seed: 5,
		OnStart: func(run *Run) {
			select {
			case <-run.Done():
				t.Errorf("run %s finished before OnStart", run.ID())
			default:
			}
			mu.Lock()
			defer mu.Unlock()
			started = append(started, run.ID())
		},
		OnFinish: func(snap agentrun.RunSnapshot) {
			mu.Lock()
			defer mu.Unlock()
			assert.Contains(t, started, snap.TaskID)
			finished = append(finished, snap.TaskID)
		},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := sim.Start(context.Background(), "quick lookup")
		require.NoError(t, err)
	}
	sim.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, started, 5)
	assert.ElementsMatch(t, started, finished)
}

func TestStartRejectsBlankTask(t *testing.T) {
	sim, err := New(DefaultConfig(), Options{})
	require.NoError(t, err)
	_, err = sim.Start(context.Background(), " \t")
	assert.ErrorIs(t, err, ErrEmptyTask)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxSteps = 2
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxStepDelay = time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RetryProbability = 1.5
	assert.Error(t, cfg.Validate())

	_, err := New(cfg, Options{})
	assert.Error(t, err)
}
