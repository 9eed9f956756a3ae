package console

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/simulator"
)

var (
	// ErrNotFound is returned for unknown run or task ids.
	ErrNotFound = errors.New("not found")
	// ErrTaskNotRunning is returned when stopping a task that is not running.
	ErrTaskNotRunning = errors.New("task is not running")
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxTrendDays    = 90
)

// historyEntry is one finished (or seeded) task. snapshot is nil for demo
// entries that never ran in this process.
type historyEntry struct {
	record   agentrun.TaskRecord
	started  time.Time
	snapshot *agentrun.RunSnapshot
}

// Store holds live runs and a bounded history of finished ones.
type Store struct {
	mu      sync.Mutex
	live    map[string]*simulator.Run
	history *lru.Cache[string, historyEntry]
	now     func() time.Time
}

// NewStore keeps at most capacity finished tasks, evicting the least
// recently used.
func NewStore(capacity int, now func() time.Time) (*Store, error) {
	if now == nil {
		now = time.Now
	}
	history, err := lru.New[string, historyEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create run history: %w", err)
	}
	return &Store{live: make(map[string]*simulator.Run), history: history, now: now}, nil
}

func (s *Store) seed(entries []historyEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.history.Add(e.record.ID, e)
	}
}

// AddLive tracks a started run until Finish is called for it.
func (s *Store) AddLive(run *simulator.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[run.ID()] = run
}

// Finish moves a run from the live set into history.
func (s *Store) Finish(snap agentrun.RunSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, snap.TaskID)
	snap = snap.Clone()
	s.history.Add(snap.TaskID, historyEntry{record: recordFromSnapshot(snap), started: snap.StartedAt, snapshot: &snap})
}

// Live returns the live run with id.
func (s *Store) Live(id string) (*simulator.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.live[id]
	return run, ok
}

// Snapshot returns the current state of a live or finished run.
func (s *Store) Snapshot(id string) (agentrun.RunSnapshot, error) {
	s.mu.Lock()
	run, live := s.live[id]
	entry, known := s.history.Peek(id)
	s.mu.Unlock()

	if live {
		return run.Snapshot(), nil
	}
	if known && entry.snapshot != nil {
		return entry.snapshot.Clone(), nil
	}
	return agentrun.RunSnapshot{}, ErrNotFound
}

// LiveCount returns the number of runs still executing.
func (s *Store) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// entries returns every task, newest first.
func (s *Store) entries() []historyEntry {
	s.mu.Lock()
	runs := make([]*simulator.Run, 0, len(s.live))
	for _, run := range s.live {
		runs = append(runs, run)
	}
	out := s.history.Values()
	s.mu.Unlock()

	for _, run := range runs {
		snap := run.Snapshot()
		out = append(out, historyEntry{record: recordFromSnapshot(snap), started: snap.StartedAt})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].started.Equal(out[j].started) {
			return out[i].record.ID < out[j].record.ID
		}
		return out[i].started.After(out[j].started)
	})
	return out
}

// Tasks returns one page of the task history. Out-of-range paging values
// fall back to page 1 and the default page size.
func (s *Store) Tasks(page, pageSize int) agentrun.TaskPage {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	all := s.entries()
	list := []agentrun.TaskRecord{}
	start := (page - 1) * pageSize
	for i := start; i < len(all) && i < start+pageSize; i++ {
		list = append(list, all[i].record)
	}
	return agentrun.TaskPage{List: list, Total: len(all), Page: page, PageSize: pageSize}
}

// Task returns one task record.
func (s *Store) Task(id string) (agentrun.TaskRecord, error) {
	if run, ok := s.Live(id); ok {
		return recordFromSnapshot(run.Snapshot()), nil
	}
	s.mu.Lock()
	entry, ok := s.history.Peek(id)
	s.mu.Unlock()
	if !ok {
		return agentrun.TaskRecord{}, ErrNotFound
	}
	return entry.record, nil
}

// StopTask cancels a running task. Live runs are stopped; seeded running
// tasks are marked cancelled.
func (s *Store) StopTask(id string) error {
	s.mu.Lock()
	if run, ok := s.live[id]; ok {
		s.mu.Unlock()
		if run.Snapshot().Status.IsTerminal() {
			return ErrTaskNotRunning
		}
		run.Stop()
		return nil
	}
	defer s.mu.Unlock()
	entry, ok := s.history.Peek(id)
	if !ok {
		return ErrNotFound
	}
	if entry.record.Status != agentrun.TaskRunning {
		return ErrTaskNotRunning
	}
	entry.record.Status = agentrun.TaskCancelled
	s.history.Add(id, entry)
	return nil
}

// Statistics summarises every known task.
func (s *Store) Statistics() agentrun.Statistics {
	var stats agentrun.Statistics
	for _, e := range s.entries() {
		stats.TotalTasks++
		switch e.record.Status {
		case agentrun.TaskCompleted:
			stats.CompletedTasks++
		case agentrun.TaskFailed:
			stats.FailedTasks++
		case agentrun.TaskRunning:
			stats.RunningTasks++
		}
		if e.record.TokenUsed != nil {
			stats.TotalTokens += *e.record.TokenUsed
		}
	}
	if stats.TotalTasks > 0 {
		stats.SuccessRate = math.Round(float64(stats.CompletedTasks)/float64(stats.TotalTasks)*1000) / 10
	}
	return stats
}

// TokenTrend sums token usage per local calendar day for the last days
// days, oldest first. days is clamped to [1, 90].
func (s *Store) TokenTrend(days int) agentrun.TokenTrend {
	if days < 1 {
		days = 7
	}
	if days > maxTrendDays {
		days = maxTrendDays
	}
	now := s.now().Local()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	first := today.AddDate(0, 0, -(days - 1))

	points := make([]agentrun.TokenTrendPoint, days)
	for i := range points {
		points[i].Date = first.AddDate(0, 0, i).Format("01-02")
	}
	for _, e := range s.entries() {
		if e.record.TokenUsed == nil {
			continue
		}
		started := e.started.Local()
		day := time.Date(started.Year(), started.Month(), started.Day(), 0, 0, 0, 0, time.Local)
		idx := int(math.Round(day.Sub(first).Hours() / 24))
		if idx < 0 || idx >= days {
			continue
		}
		points[idx].Tokens += *e.record.TokenUsed
	}
	return agentrun.TokenTrend{Trends: points}
}

// durationBuckets are upper bounds in seconds, exclusive.
var durationBuckets = []struct {
	label string
	upper int
}{
	{"0-30s", 30},
	{"30-60s", 60},
	{"1-5min", 300},
	{"5-10min", 600},
	{">10min", math.MaxInt},
}

// TaskAnalysis counts outcomes and buckets task durations.
func (s *Store) TaskAnalysis() agentrun.TaskAnalysis {
	analysis := agentrun.TaskAnalysis{DurationDistribution: make([]agentrun.DurationBucket, len(durationBuckets))}
	for i, b := range durationBuckets {
		analysis.DurationDistribution[i].Range = b.label
	}
	for _, e := range s.entries() {
		switch e.record.Status {
		case agentrun.TaskCompleted:
			analysis.SuccessCount++
		case agentrun.TaskFailed:
			analysis.FailedCount++
		}
		if e.record.Duration == nil {
			continue
		}
		for i, b := range durationBuckets {
			if *e.record.Duration < b.upper {
				analysis.DurationDistribution[i].Count++
				break
			}
		}
	}
	return analysis
}

func recordFromSnapshot(snap agentrun.RunSnapshot) agentrun.TaskRecord {
	record := agentrun.TaskRecord{
		ID:        snap.TaskID,
		Name:      snap.Task,
		Status:    agentrun.TaskStatusFor(snap.Status),
		StartTime: snap.StartedAt.Local().Format(agentrun.TaskRecordTimeLayout),
	}
	tokens := snap.TotalTokens
	record.TokenUsed = &tokens
	if snap.FinishedAt != nil {
		record.EndTime = snap.FinishedAt.Local().Format(agentrun.TaskRecordTimeLayout)
		d := int(math.Round(snap.FinishedAt.Sub(snap.StartedAt).Seconds()))
		record.Duration = &d
	}
	switch snap.Status {
	case agentrun.StatusCompleted:
		record.Result = fmt.Sprintf("Completed %d steps", snap.CurrentStep)
	case agentrun.StatusError:
		record.Error = "Run aborted"
	}
	return record
}
