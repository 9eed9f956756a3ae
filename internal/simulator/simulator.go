// Package simulator executes synthetic agent runs so the console can be driven
// end to end without a browser agent attached.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/async"
	"agentconsole/internal/logging"
	"agentconsole/internal/observability"
)

// ErrEmptyTask is returned for blank task descriptions.
var ErrEmptyTask = errors.New("task description is empty")

var stepActions = []string{
	"Analyzing task requirements...",
	"Opening the browser...",
	"Navigating to the target page...",
	"Locating page elements...",
	"Performing click action...",
	"Typing text input...",
	"Waiting for the page to load...",
	"Extracting page data...",
	"Processing search results...",
	"Capturing page snapshot...",
	"Verifying action results...",
	"Organizing output...",
	"Generating execution report...",
	"Saving execution record...",
	"Running final checks...",
}

// Config bounds the shape of simulated runs.
type Config struct {
	MinSteps         int           `mapstructure:"min_steps" yaml:"min_steps"`
	MaxSteps         int           `mapstructure:"max_steps" yaml:"max_steps"`
	MinStepDelay     time.Duration `mapstructure:"min_step_delay" yaml:"min_step_delay"`
	MaxStepDelay     time.Duration `mapstructure:"max_step_delay" yaml:"max_step_delay"`
	RetryProbability float64       `mapstructure:"retry_probability" yaml:"retry_probability"`
}

// DefaultConfig returns the stock simulation profile.
func DefaultConfig() Config {
	return Config{
		MinSteps:         5,
		MaxSteps:         15,
		MinStepDelay:     1500 * time.Millisecond,
		MaxStepDelay:     3 * time.Second,
		RetryProbability: 0.15,
	}
}

// Validate rejects inverted or negative bounds.
func (c Config) Validate() error {
	if c.MinSteps <= 0 || c.MaxSteps < c.MinSteps {
		return fmt.Errorf("invalid step range [%d, %d]", c.MinSteps, c.MaxSteps)
	}
	if c.MinStepDelay < 0 || c.MaxStepDelay < c.MinStepDelay {
		return fmt.Errorf("invalid step delay range [%s, %s]", c.MinStepDelay, c.MaxStepDelay)
	}
	if c.RetryProbability < 0 || c.RetryProbability > 1 {
		return fmt.Errorf("retry probability must be within [0, 1], got %v", c.RetryProbability)
	}
	return nil
}

// Options wires the simulator's collaborators. Zero values are safe.
type Options struct {
	Logger  logging.Logger
	Metrics *observability.MetricsCollector
	Tracer  *observability.TracerProvider
	// OnStart sees every run before its goroutine launches.
	OnStart func(*Run)
	// OnFinish receives the final snapshot of every run.
	OnFinish func(agentrun.RunSnapshot)
	Now      func() time.Time
	Seed     int64
}

// Simulator starts and tracks synthetic runs.
type Simulator struct {
	cfg      Config
	logger   logging.Logger
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
	onStart  func(*Run)
	onFinish func(agentrun.RunSnapshot)
	now      func() time.Time
	group    *async.Group

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds a Simulator. It fails on an invalid Config.
func New(cfg Config, opts Options) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:      cfg,
		logger:   logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		onStart:  opts.OnStart,
		onFinish: opts.OnFinish,
		now:      now,
		group:    async.NewGroup(logger),
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// Start launches a run for task. ctx bounds the run's lifetime; cancelling it
// ends the run with status error.
func (s *Simulator) Start(ctx context.Context, task string) (*Run, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, ErrEmptyTask
	}
	id := uuid.NewString()[:8]
	run := newRun(id, task, s.now)
	steps := s.intn(s.cfg.MinSteps, s.cfg.MaxSteps)
	run.setMaxSteps(steps)

	ctx = observability.ContextWithTaskID(ctx, id)
	s.metrics.RecordRunSubmitted(ctx)
	logging.FromContext(ctx, s.logger).Info("Run started: steps=%d task=%q", steps, task)

	if s.onStart != nil {
		s.onStart(run)
	}
	s.group.Go("run-"+id, func() {
		s.execute(ctx, run, steps)
	})
	return run, nil
}

// Wait blocks until every started run has finished.
func (s *Simulator) Wait() {
	s.group.Wait()
}

func (s *Simulator) execute(ctx context.Context, run *Run, steps int) {
	logger := logging.FromContext(ctx, s.logger)
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanRunExecute)
	defer span.End()

	monitor := newMonitorAt(run.ID(), steps, logger, s.now)
	aborted := false

	for step := 1; step <= steps; step++ {
		if !run.waitRunnable(ctx.Done()) {
			aborted = ctx.Err() != nil
			break
		}
		action := stepActions[(step-1)%len(stepActions)]
		if !monitor.StartStep(action) {
			break
		}
		_, stepSpan := s.tracer.StartSpan(ctx, observability.SpanRunStep)

		prompt := s.intn(500, 3000)
		completion := s.intn(100, 800)
		monitor.RecordTokens(prompt, completion)
		if kind, ok := s.maybeRetry(); ok {
			monitor.RecordRetry(kind, "simulated "+string(kind)+" retry")
		}

		content := fmt.Sprintf("**Step %d/%d** - %s\nTokens: +%d prompt, +%d completion", step, steps, action, prompt, completion)
		msg := agentrun.NewMessage(agentrun.RoleAssistant, content, s.now())
		run.record(monitor.Summary(), &msg)
		s.metrics.RecordRunStep(ctx)
		stepSpan.SetAttributes(observability.StepAttrs(step, prompt+completion)...)

		ok := run.sleep(ctx.Done(), s.delay())
		monitor.FinishStep(ok, "")
		stepSpan.End()
		if !ok {
			aborted = ctx.Err() != nil
			break
		}
		run.record(monitor.Summary(), nil)
	}

	var (
		status agentrun.RunStatus
		exec   ExecutionStatus
		msg    *agentrun.ChatMessage
	)
	switch {
	case run.isStopped():
		status, exec = agentrun.StatusStopped, ExecCancelled
	case aborted:
		status, exec = agentrun.StatusError, ExecFailed
		m := agentrun.NewMessage(agentrun.RoleSystem, "Run aborted: console shutting down", s.now())
		msg = &m
	case monitor.Summary().Status == ExecStepLimitExceeded:
		status, exec = agentrun.StatusError, ExecStepLimitExceeded
	default:
		status, exec = agentrun.StatusCompleted, ExecSuccess
	}
	monitor.Finish(exec)
	summary := monitor.Summary()
	if status == agentrun.StatusCompleted {
		content := fmt.Sprintf("**Task completed**\n\n- Total steps: %d\n- Total duration: %.2fs\n- Total tokens: %d\n- Task: %s\n\n%s",
			summary.MaxSteps, summary.TotalDuration, summary.TotalTokens, run.Snapshot().Task, summary.Markdown())
		m := agentrun.NewMessage(agentrun.RoleAssistant, content, s.now())
		msg = &m
	}

	final := run.finish(status, summary, msg)
	span.SetAttributes(observability.StatusAttrs(string(final.Status))...)
	s.metrics.RecordRunFinished(ctx, string(final.Status), time.Duration(summary.TotalDuration*float64(time.Second)), summary.TotalTokens)
	logger.Info("Run finished: status=%s steps=%d/%d tokens=%d", final.Status, summary.CurrentStep, summary.MaxSteps, summary.TotalTokens)

	if s.onFinish != nil {
		s.onFinish(final)
	}
}

func (s *Simulator) maybeRetry() (RetryKind, bool) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if s.rng.Float64() >= s.cfg.RetryProbability {
		return "", false
	}
	if s.rng.Intn(2) == 0 {
		return RetrySystem, true
	}
	return RetryBusiness, true
}

// intn returns a uniform int in [lo, hi].
func (s *Simulator) intn(lo, hi int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Intn(hi-lo+1)
}

func (s *Simulator) delay() time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	span := s.cfg.MaxStepDelay - s.cfg.MinStepDelay
	if span <= 0 {
		return s.cfg.MinStepDelay
	}
	return s.cfg.MinStepDelay + time.Duration(s.rng.Int63n(int64(span)+1))
}
