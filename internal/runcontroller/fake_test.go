package runcontroller

import (
	"context"
	"sync"
	"time"

	"agentconsole/internal/agentrun"
)

type statusResult struct {
	payload agentrun.StatusPayload
	err     error
}

type fakeAPI struct {
	mu sync.Mutex

	submitID    string
	submitErr   error
	submitCalls int
	lastTask    string

	statuses    []statusResult
	statusCalls int
	// statusGate, when set, is consulted before every status response.
	statusGate func(ctx context.Context, call int)

	stopErr, pauseErr, resumeErr       error
	stopCalls, pauseCalls, resumeCalls int
	// stopGate, when set, runs before the stop response.
	stopGate func()
}

func (f *fakeAPI) Submit(_ context.Context, task string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastTask = task
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitID, nil
}

func (f *fakeAPI) Status(ctx context.Context, _ string) (agentrun.StatusPayload, error) {
	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	gate := f.statusGate
	var res statusResult
	if len(f.statuses) > 0 {
		idx := call - 1
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		res = f.statuses[idx]
	}
	f.mu.Unlock()

	if gate != nil {
		gate(ctx, call)
	}
	return res.payload, res.err
}

func (f *fakeAPI) Stop(context.Context, string) error {
	f.mu.Lock()
	f.stopCalls++
	gate := f.stopGate
	err := f.stopErr
	f.mu.Unlock()

	if gate != nil {
		gate()
	}
	return err
}

func (f *fakeAPI) Pause(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls++
	return f.pauseErr
}

func (f *fakeAPI) Resume(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeCalls++
	return f.resumeErr
}

func (f *fakeAPI) calls() (submit, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls, f.statusCalls
}

func status(s agentrun.RunStatus) statusResult {
	return statusResult{payload: agentrun.StatusPayload{Status: &s}}
}

type recorder struct {
	mu      sync.Mutex
	states  []ViewState
	notices []Notice
}

func (r *recorder) options(interval time.Duration) Options {
	return Options{
		PollInterval: interval,
		OnChange: func(s ViewState) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnNotice: func(n Notice) {
			r.mu.Lock()
			r.notices = append(r.notices, n)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) changeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recorder) lastNotice() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
