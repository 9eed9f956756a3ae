package agentrun

import "time"

// Envelope wraps every console API response. Code 0 means success.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// OK reports whether the envelope signals success.
func (e Envelope[T]) OK() bool {
	return e.Code == 0
}

// Success builds a success envelope.
func Success[T any](data T) Envelope[T] {
	return Envelope[T]{Code: 0, Message: "success", Data: data}
}

// SubmitRequest is the body of POST /api/agent/run.
type SubmitRequest struct {
	Task string `json:"task"`
}

// SubmitResponse is the data of a successful submit.
type SubmitResponse struct {
	TaskID string `json:"taskId"`
}

// StatusPayload is the data of GET /api/agent/run/{id}/status as seen by a
// client. Every field is optional.
type StatusPayload struct {
	Status           *RunStatus     `json:"status,omitempty"`
	CurrentStep      *int           `json:"currentStep,omitempty"`
	MaxSteps         *int           `json:"maxSteps,omitempty"`
	TotalDuration    *float64       `json:"totalDuration,omitempty"`
	AvgStepDuration  *float64       `json:"avgStepDuration,omitempty"`
	PromptTokens     *int           `json:"promptTokens,omitempty"`
	CompletionTokens *int           `json:"completionTokens,omitempty"`
	TotalTokens      *int           `json:"totalTokens,omitempty"`
	SystemRetries    *int           `json:"systemRetries,omitempty"`
	BusinessRetries  *int           `json:"businessRetries,omitempty"`
	TotalRetries     *int           `json:"totalRetries,omitempty"`
	ChatHistory      *[]ChatMessage `json:"chatHistory,omitempty"`
	Screenshot       *string        `json:"screenshot,omitempty"`
}

// Metrics converts the payload into metrics, defaulting each absent field to
// zero. A missing status keeps fallback.
func (p StatusPayload) Metrics(fallback RunStatus) ExecutionMetrics {
	m := ExecutionMetrics{
		Status:           fallback,
		CurrentStep:      intOrZero(p.CurrentStep),
		MaxSteps:         intOrZero(p.MaxSteps),
		TotalDuration:    floatOrZero(p.TotalDuration),
		AvgStepDuration:  floatOrZero(p.AvgStepDuration),
		PromptTokens:     intOrZero(p.PromptTokens),
		CompletionTokens: intOrZero(p.CompletionTokens),
		TotalTokens:      intOrZero(p.TotalTokens),
		SystemRetries:    intOrZero(p.SystemRetries),
		BusinessRetries:  intOrZero(p.BusinessRetries),
		TotalRetries:     intOrZero(p.TotalRetries),
	}
	if p.Status != nil && p.Status.Valid() {
		m.Status = *p.Status
	}
	return m
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// RunSnapshot is the server's authoritative view of one run. It serialises to
// the same field names as StatusPayload.
type RunSnapshot struct {
	TaskID string `json:"taskId"`
	Task   string `json:"task"`
	ExecutionMetrics
	Screenshot  *string       `json:"screenshot"`
	ChatHistory []ChatMessage `json:"chatHistory"`
	StartedAt   time.Time     `json:"startedAt"`
	FinishedAt  *time.Time    `json:"finishedAt,omitempty"`
}

// Payload converts the snapshot into the optional-field client form.
func (s RunSnapshot) Payload() StatusPayload {
	m := s.ExecutionMetrics
	history := append([]ChatMessage(nil), s.ChatHistory...)
	return StatusPayload{
		Status:           &m.Status,
		CurrentStep:      &m.CurrentStep,
		MaxSteps:         &m.MaxSteps,
		TotalDuration:    &m.TotalDuration,
		AvgStepDuration:  &m.AvgStepDuration,
		PromptTokens:     &m.PromptTokens,
		CompletionTokens: &m.CompletionTokens,
		TotalTokens:      &m.TotalTokens,
		SystemRetries:    &m.SystemRetries,
		BusinessRetries:  &m.BusinessRetries,
		TotalRetries:     &m.TotalRetries,
		ChatHistory:      &history,
		Screenshot:       s.Screenshot,
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s RunSnapshot) Clone() RunSnapshot {
	out := s
	out.ChatHistory = append([]ChatMessage(nil), s.ChatHistory...)
	if s.Screenshot != nil {
		shot := *s.Screenshot
		out.Screenshot = &shot
	}
	if s.FinishedAt != nil {
		finished := *s.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}
