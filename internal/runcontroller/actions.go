package runcontroller

import (
	"context"
	"fmt"
	"unicode"
	"unicode/utf8"

	"agentconsole/internal/agentrun"
	consoleerrors "agentconsole/internal/errors"
	"agentconsole/internal/logging"
)

// Stop asks the server to stop the run. Once the request settles, whether or
// not it succeeded, polling ends and the status becomes stopped.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.state.CanStop() {
		c.mu.Unlock()
		return ErrNoActiveRun
	}
	taskID := c.state.TaskID
	c.mu.Unlock()

	err := c.api.Stop(c.taskContext(ctx, taskID), taskID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.TaskID == taskID {
		c.stopPollerLocked()
		c.state.Status = agentrun.StatusStopped
		c.state.Metrics.Status = agentrun.StatusStopped
		c.changedLocked()
	}
	if err != nil {
		c.noticeLocked(NoticeError, "Stop request failed: "+consoleerrors.FormatForUser(err), err)
	} else {
		c.noticeLocked(NoticeInfo, "Stop signal sent", nil)
	}
	c.mu.Unlock()
	c.flush()

	if err != nil {
		logging.WithTaskID(c.logger, taskID).Warn("Stop request failed: %v", err)
		return fmt.Errorf("stop run: %w", err)
	}
	return nil
}

// Pause asks the server to pause a running run.
func (c *Controller) Pause(ctx context.Context) error {
	return c.transition(ctx, agentrun.StatusRunning, agentrun.StatusPaused, "pause", c.api.Pause)
}

// Resume asks the server to resume a paused run.
func (c *Controller) Resume(ctx context.Context) error {
	return c.transition(ctx, agentrun.StatusPaused, agentrun.StatusRunning, "resume", c.api.Resume)
}

// TogglePause pauses a running run or resumes a paused one.
func (c *Controller) TogglePause(ctx context.Context) error {
	c.mu.Lock()
	status := c.state.Status
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	switch status {
	case agentrun.StatusPaused:
		return c.Resume(ctx)
	case agentrun.StatusRunning:
		return c.Pause(ctx)
	default:
		return ErrNoActiveRun
	}
}

// transition sends a pause/resume request and then sets target regardless of
// the outcome. The update is skipped if the run changed or finished while the
// request was in flight.
func (c *Controller) transition(ctx context.Context, from, target agentrun.RunStatus, action string, send func(context.Context, string) error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.TaskID == "" || !c.state.Status.IsActive() {
		c.mu.Unlock()
		return ErrNoActiveRun
	}
	if c.state.Status != from {
		status := c.state.Status
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot %s a %s run", ErrInvalidTransition, action, status)
	}
	taskID := c.state.TaskID
	c.mu.Unlock()

	err := send(c.taskContext(ctx, taskID), taskID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.TaskID == taskID && c.state.Status.IsActive() {
		c.state.Status = target
		c.state.Metrics.Status = target
		c.changedLocked()
	}
	if err != nil {
		c.noticeLocked(NoticeError, fmt.Sprintf("%s request failed: %s", capitalize(action), consoleerrors.FormatForUser(err)), err)
	} else {
		c.noticeLocked(NoticeInfo, fmt.Sprintf("Run %sd", action), nil)
	}
	c.mu.Unlock()
	c.flush()

	if err != nil {
		logging.WithTaskID(c.logger, taskID).Warn("%s request failed: %v", capitalize(action), err)
		return fmt.Errorf("%s run: %w", action, err)
	}
	return nil
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
