package console

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"agentconsole/internal/agentrun"
)

var demoTaskNames = []string{
	"Search GitHub projects",
	"Fill in and submit form",
	"Scrape product details",
	"Automated login test",
	"Data export job",
	"Web page screenshot",
	"Form automation test",
	"Data collection job",
	"Automation script run",
}

var demoStatuses = []agentrun.TaskStatus{
	agentrun.TaskCompleted,
	agentrun.TaskFailed,
	agentrun.TaskRunning,
	agentrun.TaskPending,
	agentrun.TaskCancelled,
}

// DemoTaskCount is how many history entries SeedDemo creates.
const DemoTaskCount = 50

// demoTasks builds the sample history shown on a fresh console. Ids are
// "1".."50"; start times fall within the 72 hours before now.
func demoTasks(now time.Time, rng *rand.Rand) []historyEntry {
	entries := make([]historyEntry, 0, DemoTaskCount)
	for i := 0; i < DemoTaskCount; i++ {
		status := demoStatuses[i%len(demoStatuses)]
		started := now.Add(-time.Duration(1+rng.Intn(72)) * time.Hour)
		record := agentrun.TaskRecord{
			ID:        strconv.Itoa(i + 1),
			Name:      fmt.Sprintf("%s #%d", demoTaskNames[i%len(demoTaskNames)], i+1),
			Status:    status,
			StartTime: started.Format(agentrun.TaskRecordTimeLayout),
		}
		if status == agentrun.TaskCompleted || status == agentrun.TaskFailed {
			d := 10 + rng.Intn(291)
			record.Duration = &d
		}
		if status != agentrun.TaskPending {
			tokens := 100 + rng.Intn(4901)
			record.TokenUsed = &tokens
		}
		switch status {
		case agentrun.TaskFailed:
			record.Error = "Execution timed out"
		case agentrun.TaskCompleted:
			record.Result = "Task completed successfully"
		}
		entries = append(entries, historyEntry{record: record, started: started})
	}
	return entries
}
