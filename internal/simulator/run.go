package simulator

import (
	"errors"
	"sync"
	"time"

	"agentconsole/internal/agentrun"
)

var (
	// ErrNotRunning is returned when pausing a run that is not running.
	ErrNotRunning = errors.New("run is not running")
	// ErrNotPaused is returned when resuming a run that is not paused.
	ErrNotPaused = errors.New("run is not paused")
)

// StoppedMessage is appended to the transcript when a user stops a run.
const StoppedMessage = "Task stopped by user"

// Run is one simulated execution. Every method is safe for concurrent use.
type Run struct {
	id  string
	now func() time.Time

	mu      sync.Mutex
	snap    agentrun.RunSnapshot
	stopped bool
	paused  bool
	// changed is closed and replaced whenever stop or pause state flips.
	changed chan struct{}
	done    chan struct{}
}

func newRun(id, task string, now func() time.Time) *Run {
	started := now()
	metrics := agentrun.DefaultMetrics()
	metrics.Status = agentrun.StatusRunning
	return &Run{
		id:  id,
		now: now,
		snap: agentrun.RunSnapshot{
			TaskID:           id,
			Task:             task,
			ExecutionMetrics: metrics,
			StartedAt:        started,
			ChatHistory: []agentrun.ChatMessage{
				agentrun.NewMessage(agentrun.RoleUser, task, started),
				agentrun.NewMessage(agentrun.RoleAssistant, "Task received, initializing agent and browser environment...", started),
			},
		},
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the run's task id.
func (r *Run) ID() string { return r.id }

// Snapshot returns a deep copy of the run's current state.
func (r *Run) Snapshot() agentrun.RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.Clone()
}

// Done is closed once the execution goroutine has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// Stop marks the run stopped. Stopping a finished run is a no-op.
func (r *Run) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.snap.Status.IsTerminal() {
		return
	}
	r.stopped = true
	r.paused = false
	r.snap.Status = agentrun.StatusStopped
	r.snap.ChatHistory = append(r.snap.ChatHistory, agentrun.NewMessage(agentrun.RoleSystem, StoppedMessage, r.now()))
	r.signalLocked()
}

// Pause suspends a running run before its next step.
func (r *Run) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap.Status != agentrun.StatusRunning {
		return ErrNotRunning
	}
	r.paused = true
	r.snap.Status = agentrun.StatusPaused
	r.signalLocked()
	return nil
}

// Resume continues a paused run.
func (r *Run) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap.Status != agentrun.StatusPaused {
		return ErrNotPaused
	}
	r.paused = false
	r.snap.Status = agentrun.StatusRunning
	r.signalLocked()
	return nil
}

func (r *Run) signalLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// waitRunnable blocks while the run is paused. It reports false once the run
// is stopped or ctx ends.
func (r *Run) waitRunnable(ctx <-chan struct{}) bool {
	for {
		r.mu.Lock()
		stopped, paused, changed := r.stopped, r.paused, r.changed
		r.mu.Unlock()
		if stopped {
			return false
		}
		if !paused {
			return true
		}
		select {
		case <-changed:
		case <-ctx:
			return false
		}
	}
}

// sleep waits for d unless the run is stopped or ctx ends first. Pausing
// does not shorten the current step.
func (r *Run) sleep(ctx <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		r.mu.Lock()
		stopped, changed := r.stopped, r.changed
		r.mu.Unlock()
		if stopped {
			return false
		}
		select {
		case <-timer.C:
			return true
		case <-changed:
		case <-ctx:
			return false
		}
	}
}

// record publishes monitor progress, plus msg when non-nil, unless the run
// was stopped meanwhile.
func (r *Run) record(summary Summary, msg *agentrun.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.snap.ExecutionMetrics = summary.Metrics(r.snap.Status)
	if msg != nil {
		r.snap.ChatHistory = append(r.snap.ChatHistory, *msg)
	}
}

func (r *Run) setMaxSteps(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.MaxSteps = n
}

// finish stamps the terminal state. A stopped run keeps its status.
func (r *Run) finish(status agentrun.RunStatus, summary Summary, msg *agentrun.ChatMessage) agentrun.RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		status = agentrun.StatusStopped
	}
	r.snap.ExecutionMetrics = summary.Metrics(status)
	if msg != nil && !r.stopped {
		r.snap.ChatHistory = append(r.snap.ChatHistory, *msg)
	}
	finished := r.now()
	r.snap.FinishedAt = &finished
	close(r.done)
	return r.snap.Clone()
}

func (r *Run) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
