// Package agentrun defines the data model shared by the run controller, the
// console server and its clients.
package agentrun

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus is the lifecycle state of a single run.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusStopped   RunStatus = "stopped"
	StatusCompleted RunStatus = "completed"
	StatusError     RunStatus = "error"
)

// IsTerminal reports whether no further polling happens from this status.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusError:
		return true
	default:
		return false
	}
}

// IsActive reports whether a run is executing or paused.
func (s RunStatus) IsActive() bool {
	return s == StatusRunning || s == StatusPaused
}

// Valid reports whether s is one of the known statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused, StatusStopped, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

func (s RunStatus) String() string {
	return string(s)
}

// ParseRunStatus parses a status name case-insensitively.
func ParseRunStatus(raw string) (RunStatus, error) {
	status := RunStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown run status %q", raw)
	}
	return status, nil
}

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TimestampLayout is the wall-clock format used for transcript timestamps.
const TimestampLayout = "15:04:05"

// ChatMessage is one transcript entry.
type ChatMessage struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewMessage stamps a message with the local time of t.
func NewMessage(role Role, content string, t time.Time) ChatMessage {
	return ChatMessage{Role: role, Content: content, Timestamp: t.Local().Format(TimestampLayout)}
}

// ExecutionMetrics is the per-run counter block shown next to the transcript.
// Durations are seconds.
type ExecutionMetrics struct {
	Status           RunStatus `json:"status"`
	CurrentStep      int       `json:"currentStep"`
	MaxSteps         int       `json:"maxSteps"`
	TotalDuration    float64   `json:"totalDuration"`
	AvgStepDuration  float64   `json:"avgStepDuration"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	SystemRetries    int       `json:"systemRetries"`
	BusinessRetries  int       `json:"businessRetries"`
	TotalRetries     int       `json:"totalRetries"`
}

// DefaultMetrics returns zeroed metrics with status idle.
func DefaultMetrics() ExecutionMetrics {
	return ExecutionMetrics{Status: StatusIdle}
}

// Progress returns the completed fraction of steps in [0,1].
func (m ExecutionMetrics) Progress() float64 {
	if m.MaxSteps <= 0 {
		return 0
	}
	p := float64(m.CurrentStep) / float64(m.MaxSteps)
	if p > 1 {
		return 1
	}
	return p
}
