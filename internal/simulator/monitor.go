package simulator

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/logging"
)

// ExecutionStatus is the monitor's view of how a run ended.
type ExecutionStatus string

const (
	ExecRunning           ExecutionStatus = "RUNNING"
	ExecSuccess           ExecutionStatus = "SUCCESS"
	ExecFailed            ExecutionStatus = "FAILED"
	ExecStepLimitExceeded ExecutionStatus = "STEP_LIMIT_EXCEEDED"
	ExecCancelled         ExecutionStatus = "CANCELLED"
)

// RetryKind separates infrastructure retries from task-level ones.
type RetryKind string

const (
	RetrySystem   RetryKind = "system"
	RetryBusiness RetryKind = "business"
)

// RetryRecord is one recorded retry.
type RetryRecord struct {
	Step   int       `json:"step"`
	Kind   RetryKind `json:"type"`
	Reason string    `json:"reason"`
	At     time.Time `json:"timestamp"`
}

// StepMetrics times one step.
type StepMetrics struct {
	Step     int           `json:"step"`
	Action   string        `json:"action"`
	Start    time.Time     `json:"-"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

// Summary is a point-in-time report of a monitored run.
type Summary struct {
	TaskID           string          `json:"taskId"`
	Status           ExecutionStatus `json:"status"`
	CurrentStep      int             `json:"currentStep"`
	MaxSteps         int             `json:"maxSteps"`
	TotalDuration    float64         `json:"totalDuration"`
	AvgStepDuration  float64         `json:"avgStepDuration"`
	PromptTokens     int             `json:"promptTokens"`
	CompletionTokens int             `json:"completionTokens"`
	TotalTokens      int             `json:"totalTokens"`
	SystemRetries    int             `json:"systemRetries"`
	BusinessRetries  int             `json:"businessRetries"`
	Retries          []RetryRecord   `json:"retries"`
	Steps            []StepMetrics   `json:"steps"`
}

// Monitor enforces the step limit and accumulates tokens, retries and
// durations for one run. It is safe for concurrent use.
type Monitor struct {
	taskID   string
	maxSteps int
	logger   logging.Logger
	now      func() time.Time

	mu               sync.Mutex
	status           ExecutionStatus
	currentStep      int
	start            time.Time
	end              time.Time
	promptTokens     int
	completionTokens int
	systemRetries    int
	businessRetries  int
	retries          []RetryRecord
	steps            []StepMetrics
	current          *StepMetrics
}

// NewMonitor starts monitoring a run limited to maxSteps steps.
func NewMonitor(taskID string, maxSteps int, logger logging.Logger) *Monitor {
	return newMonitorAt(taskID, maxSteps, logger, time.Now)
}

func newMonitorAt(taskID string, maxSteps int, logger logging.Logger, now func() time.Time) *Monitor {
	m := &Monitor{
		taskID:   taskID,
		maxSteps: maxSteps,
		logger:   logging.WithTaskID(logging.OrNop(logger), taskID),
		now:      now,
		status:   ExecRunning,
		start:    now(),
	}
	m.logger.Debug("Monitor started: max_steps=%d", maxSteps)
	return m
}

// StartStep opens the next step. It returns false, and trips the step limit,
// once maxSteps would be exceeded.
func (m *Monitor) StartStep(action string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentStep++
	if m.currentStep > m.maxSteps {
		m.status = ExecStepLimitExceeded
		m.logger.Warn("Step limit exceeded: step=%d max_steps=%d", m.currentStep, m.maxSteps)
		return false
	}
	m.current = &StepMetrics{Step: m.currentStep, Action: action, Start: m.now()}
	return true
}

// FinishStep closes the open step, if any.
func (m *Monitor) FinishStep(success bool, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	m.current.Duration = m.now().Sub(m.current.Start)
	m.current.Success = success
	m.current.Error = errMsg
	m.steps = append(m.steps, *m.current)
	m.current = nil
}

// RecordRetry counts a retry against the current step.
func (m *Monitor) RecordRetry(kind RetryKind, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retries = append(m.retries, RetryRecord{Step: m.currentStep, Kind: kind, Reason: reason, At: m.now()})
	switch kind {
	case RetrySystem:
		m.systemRetries++
	case RetryBusiness:
		m.businessRetries++
	}
	m.logger.Info("Retry recorded: step=%d type=%s reason=%s", m.currentStep, kind, reason)
}

// RecordTokens adds token usage.
func (m *Monitor) RecordTokens(prompt, completion int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens += prompt
	m.completionTokens += completion
}

// Finish stamps the end time and final status.
func (m *Monitor) Finish(status ExecutionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.end = m.now()
	m.status = status
	m.logger.Info("Execution finished: status=%s duration=%.2fs steps=%d/%d",
		status, m.totalDurationLocked().Seconds(), min(m.currentStep, m.maxSteps), m.maxSteps)
}

func (m *Monitor) totalDurationLocked() time.Duration {
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return m.now().Sub(m.start)
}

func (m *Monitor) avgStepDurationLocked() time.Duration {
	if len(m.steps) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range m.steps {
		total += s.Duration
	}
	return total / time.Duration(len(m.steps))
}

// Summary reports everything recorded so far.
func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Summary{
		TaskID:           m.taskID,
		Status:           m.status,
		CurrentStep:      min(m.currentStep, m.maxSteps),
		MaxSteps:         m.maxSteps,
		TotalDuration:    roundSeconds(m.totalDurationLocked()),
		AvgStepDuration:  roundSeconds(m.avgStepDurationLocked()),
		PromptTokens:     m.promptTokens,
		CompletionTokens: m.completionTokens,
		TotalTokens:      m.promptTokens + m.completionTokens,
		SystemRetries:    m.systemRetries,
		BusinessRetries:  m.businessRetries,
		Retries:          append([]RetryRecord(nil), m.retries...),
		Steps:            append([]StepMetrics(nil), m.steps...),
	}
}

// Metrics renders the summary as the wire metrics block.
func (s Summary) Metrics(status agentrun.RunStatus) agentrun.ExecutionMetrics {
	return agentrun.ExecutionMetrics{
		Status:           status,
		CurrentStep:      s.CurrentStep,
		MaxSteps:         s.MaxSteps,
		TotalDuration:    s.TotalDuration,
		AvgStepDuration:  s.AvgStepDuration,
		PromptTokens:     s.PromptTokens,
		CompletionTokens: s.CompletionTokens,
		TotalTokens:      s.TotalTokens,
		SystemRetries:    s.SystemRetries,
		BusinessRetries:  s.BusinessRetries,
		TotalRetries:     s.SystemRetries + s.BusinessRetries,
	}
}

// Markdown renders the summary for a transcript message.
func (s Summary) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Execution metrics\n\n**Status**: %s\n\n", s.Status)
	fmt.Fprintf(&b, "- Steps: %d / %d\n", s.CurrentStep, s.MaxSteps)
	fmt.Fprintf(&b, "- Total duration: %.2fs\n", s.TotalDuration)
	fmt.Fprintf(&b, "- Average step: %.2fs\n", s.AvgStepDuration)
	fmt.Fprintf(&b, "- Tokens: %d prompt, %d completion, %d total\n", s.PromptTokens, s.CompletionTokens, s.TotalTokens)
	fmt.Fprintf(&b, "- Retries: %d system, %d business", s.SystemRetries, s.BusinessRetries)
	return b.String()
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
