package runcontroller

import (
	"errors"

	"agentconsole/internal/agentrun"
)

var (
	// ErrEmptyTask is returned when the task description is blank.
	ErrEmptyTask = errors.New("task description is empty")
	// ErrRunActive is returned when an operation needs the run to be idle or finished.
	ErrRunActive = errors.New("a run is already active")
	// ErrNoActiveRun is returned by lifecycle actions without a running or paused run.
	ErrNoActiveRun = errors.New("no active run")
	// ErrInvalidTransition is returned when the current status does not allow the action.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("run controller closed")
)

// ViewState is an immutable snapshot of everything a front-end renders.
type ViewState struct {
	TaskID     string
	Status     agentrun.RunStatus
	Metrics    agentrun.ExecutionMetrics
	Transcript []agentrun.ChatMessage
	// Screenshot is base64 image data, nil when none was reported.
	Screenshot *string
	Submitting bool
	Polling    bool
}

func initialState() ViewState {
	return ViewState{
		Status:     agentrun.StatusIdle,
		Metrics:    agentrun.DefaultMetrics(),
		Transcript: []agentrun.ChatMessage{},
	}
}

func (s ViewState) clone() ViewState {
	out := s
	out.Transcript = append([]agentrun.ChatMessage(nil), s.Transcript...)
	if out.Transcript == nil {
		out.Transcript = []agentrun.ChatMessage{}
	}
	return out
}

// CanSubmit reports whether a new task may be submitted.
func (s ViewState) CanSubmit() bool {
	return !s.Submitting && !s.Status.IsActive()
}

// CanStop reports whether Stop is meaningful.
func (s ViewState) CanStop() bool {
	return s.TaskID != "" && s.Status.IsActive()
}

// CanClear reports whether Clear is permitted.
func (s ViewState) CanClear() bool {
	return !s.Submitting && !s.Status.IsActive()
}

// HasScreenshot reports whether a screenshot is available.
func (s ViewState) HasScreenshot() bool {
	return s.Screenshot != nil && *s.Screenshot != ""
}

// NoticeLevel grades a transient user-visible message.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeSuccess:
		return "success"
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a transient message for the operator.
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
}
