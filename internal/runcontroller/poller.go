package runcontroller

import (
	"context"
	"time"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/logging"
)

type pollerHandle struct {
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// startPollerLocked cancels any running poller and starts a new generation.
func (c *Controller) startPollerLocked(taskID string) {
	c.stopPollerLocked()
	c.generation++
	c.lastApplied = 0

	ctx, cancel := context.WithCancel(c.taskContext(c.baseCtx, taskID))
	handle := &pollerHandle{
		generation: c.generation,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	c.poll = handle
	c.pollDone = handle.done
	go c.runPoller(ctx, handle, taskID)
}

func (c *Controller) stopPollerLocked() {
	if c.poll == nil {
		return
	}
	c.poll.cancel()
	c.poll = nil
	c.state.Polling = false
}

// runPoller fetches immediately, then once per interval. Fetches are
// sequential: a slow fetch delays the next tick instead of overlapping it.
func (c *Controller) runPoller(ctx context.Context, handle *pollerHandle, taskID string) {
	defer close(handle.done)
	logger := logging.FromContext(ctx, c.logger)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var seq uint64
	for {
		seq++
		if !c.fetchOnce(ctx, handle.generation, seq, taskID, logger) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fetchOnce performs one status fetch and applies it. It returns false once
// the poller should exit.
func (c *Controller) fetchOnce(ctx context.Context, generation, seq uint64, taskID string, logger logging.Logger) bool {
	if ctx.Err() != nil {
		return false
	}
	payload, err := c.api.Status(ctx, taskID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		logger.Debug("Status fetch #%d failed, retrying next tick: %v", seq, err)
		return true
	}

	c.mu.Lock()
	keepGoing := c.applyLocked(generation, seq, payload)
	c.mu.Unlock()
	c.flush()
	return keepGoing
}

// applyLocked folds a poll result into the state. Results from an older
// generation, or not newer than the last applied sequence, are discarded.
func (c *Controller) applyLocked(generation, seq uint64, payload agentrun.StatusPayload) bool {
	if c.closed || c.poll == nil || generation != c.generation {
		return false
	}
	if seq <= c.lastApplied {
		return true
	}
	c.lastApplied = seq

	metrics := payload.Metrics(c.state.Status)
	// Only running, paused or a terminal status is meaningful for a live run.
	if !metrics.Status.IsActive() && !metrics.Status.IsTerminal() {
		metrics.Status = c.state.Status
	}
	c.state.Metrics = metrics
	c.state.Status = metrics.Status
	if payload.ChatHistory != nil {
		c.state.Transcript = append([]agentrun.ChatMessage(nil), (*payload.ChatHistory)...)
	}
	if payload.Screenshot != nil {
		shot := *payload.Screenshot
		c.state.Screenshot = &shot
	}

	terminal := metrics.Status.IsTerminal()
	if terminal {
		c.stopPollerLocked()
		c.noticeLocked(terminalNoticeLevel(metrics.Status), "Run "+string(metrics.Status), nil)
	}
	c.changedLocked()
	return !terminal
}

func terminalNoticeLevel(status agentrun.RunStatus) NoticeLevel {
	switch status {
	case agentrun.StatusCompleted:
		return NoticeSuccess
	case agentrun.StatusError:
		return NoticeError
	default:
		return NoticeInfo
	}
}
