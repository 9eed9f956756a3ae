// Package runcontroller drives a single agent run: submission, status
// polling and the stop/pause/resume/clear lifecycle.
package runcontroller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"agentconsole/internal/agentrun"
	consoleerrors "agentconsole/internal/errors"
	"agentconsole/internal/logging"
	"agentconsole/internal/observability"
)

// DefaultPollInterval is the status fetch cadence.
const DefaultPollInterval = time.Second

// RunAPI is the remote surface the controller drives.
type RunAPI interface {
	Submit(ctx context.Context, task string) (string, error)
	Status(ctx context.Context, taskID string) (agentrun.StatusPayload, error)
	Stop(ctx context.Context, taskID string) error
	Pause(ctx context.Context, taskID string) error
	Resume(ctx context.Context, taskID string) error
}

// Options configures a Controller. Listeners run outside the controller lock
// in commit order and may call back into the controller.
type Options struct {
	PollInterval time.Duration
	Logger       logging.Logger
	OnChange     func(ViewState)
	OnNotice     func(Notice)
	Now          func() time.Time
}

type event struct {
	state  *ViewState
	notice *Notice
}

// Controller owns the view state of one run at a time. It is safe for
// concurrent use.
type Controller struct {
	api      RunAPI
	interval time.Duration
	logger   logging.Logger
	onChange func(ViewState)
	onNotice func(Notice)
	now      func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu          sync.Mutex
	state       ViewState
	closed      bool
	poll        *pollerHandle
	pollDone    chan struct{}
	generation  uint64
	lastApplied uint64
	pending     []event
	dispatching bool
}

// New builds an idle controller.
func New(api RunAPI, opts Options) *Controller {
	if api == nil {
		panic("runcontroller: nil RunAPI")
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		api:        api,
		interval:   interval,
		logger:     logging.OrNop(opts.Logger),
		onChange:   opts.OnChange,
		onNotice:   opts.OnNotice,
		now:        now,
		baseCtx:    ctx,
		baseCancel: cancel,
		state:      initialState(),
	}
}

// Snapshot returns a copy of the current view state.
func (c *Controller) Snapshot() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Submit sends a new task. Blank input is rejected without a request. On
// success the transcript is seeded with the task and polling starts; on
// failure the previous run's view is dropped.
func (c *Controller) Submit(ctx context.Context, task string) (string, error) {
	trimmed := strings.TrimSpace(task)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if trimmed == "" {
		c.noticeLocked(NoticeWarning, "Please enter a task description", ErrEmptyTask)
		c.mu.Unlock()
		c.flush()
		return "", ErrEmptyTask
	}
	if !c.state.CanSubmit() {
		c.mu.Unlock()
		return "", ErrRunActive
	}
	c.state.Submitting = true
	c.changedLocked()
	c.mu.Unlock()
	c.flush()

	taskID, err := c.api.Submit(ctx, trimmed)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	c.state.Submitting = false
	if err != nil {
		metrics := agentrun.DefaultMetrics()
		metrics.Status = agentrun.StatusError
		c.state = ViewState{
			Status:     agentrun.StatusError,
			Metrics:    metrics,
			Transcript: []agentrun.ChatMessage{},
		}
		c.changedLocked()
		c.noticeLocked(NoticeError, "Submit failed: "+consoleerrors.FormatForUser(err), err)
		c.mu.Unlock()
		c.flush()
		c.logger.Warn("Submit failed: %v", err)
		return "", fmt.Errorf("submit task: %w", err)
	}

	metrics := agentrun.DefaultMetrics()
	metrics.Status = agentrun.StatusRunning
	c.state = ViewState{
		TaskID:     taskID,
		Status:     agentrun.StatusRunning,
		Metrics:    metrics,
		Transcript: []agentrun.ChatMessage{agentrun.NewMessage(agentrun.RoleUser, trimmed, c.now())},
	}
	c.startPollerLocked(taskID)
	c.changedLocked()
	c.noticeLocked(NoticeSuccess, "Task submitted", nil)
	c.mu.Unlock()
	c.flush()

	logging.WithTaskID(c.logger, taskID).Info("Run submitted")
	return taskID, nil
}

// Attach follows an existing run without submitting. The first poll replaces
// the assumed running status with the server's.
func (c *Controller) Attach(taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return ErrNoActiveRun
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.state.CanSubmit() {
		c.mu.Unlock()
		return ErrRunActive
	}
	metrics := agentrun.DefaultMetrics()
	metrics.Status = agentrun.StatusRunning
	c.state = ViewState{
		TaskID:     taskID,
		Status:     agentrun.StatusRunning,
		Metrics:    metrics,
		Transcript: []agentrun.ChatMessage{},
	}
	c.startPollerLocked(taskID)
	c.changedLocked()
	c.mu.Unlock()
	c.flush()
	return nil
}

// Clear resets the view to idle. It is refused while a run is running,
// paused or being submitted.
func (c *Controller) Clear() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.state.CanClear() {
		c.mu.Unlock()
		return ErrRunActive
	}
	c.stopPollerLocked()
	c.state = initialState()
	c.changedLocked()
	c.mu.Unlock()
	c.flush()
	return nil
}

// Close tears the controller down: polling stops, in-flight requests are
// cancelled, and no listener is invoked afterwards. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopPollerLocked()
	c.pending = nil
	c.mu.Unlock()
	c.baseCancel()
	return nil
}

// Done is closed once the most recently started poller goroutine has exited.
// It is already closed when no poller was ever started.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pollDone == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.pollDone
}

func (c *Controller) changedLocked() {
	c.state.Polling = c.poll != nil
	if c.onChange == nil {
		return
	}
	snapshot := c.state.clone()
	c.pending = append(c.pending, event{state: &snapshot})
}

func (c *Controller) noticeLocked(level NoticeLevel, message string, err error) {
	if c.onNotice == nil {
		return
	}
	c.pending = append(c.pending, event{notice: &Notice{Level: level, Message: message, Err: err}})
}

// flush delivers queued events outside the lock. Only one goroutine drains
// at a time so listeners observe commit order; re-entrant calls return
// immediately and leave their events to the active drainer.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.pending) > 0 && !c.closed {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		c.deliver(ev)
		c.mu.Lock()
	}
	c.pending = nil
	c.dispatching = false
	c.mu.Unlock()
}

func (c *Controller) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Run listener panicked: %v", r)
		}
	}()
	if ev.state != nil && c.onChange != nil {
		c.onChange(*ev.state)
	}
	if ev.notice != nil && c.onNotice != nil {
		c.onNotice(*ev.notice)
	}
}

func (c *Controller) taskContext(ctx context.Context, taskID string) context.Context {
	return observability.ContextWithTaskID(ctx, taskID)
}
