package agentrun

// TaskStatus is the coarse status shown in the task history list.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskRunning   TaskStatus = "running"
	TaskPending   TaskStatus = "pending"
	TaskCancelled TaskStatus = "cancelled"
)

// TaskStatusFor maps a run status onto its history status.
func TaskStatusFor(status RunStatus) TaskStatus {
	switch status {
	case StatusCompleted:
		return TaskCompleted
	case StatusError:
		return TaskFailed
	case StatusStopped:
		return TaskCancelled
	case StatusRunning, StatusPaused:
		return TaskRunning
	default:
		return TaskPending
	}
}

// TaskRecord is one entry of the task history. Duration is whole seconds.
type TaskRecord struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    TaskStatus `json:"status"`
	StartTime string     `json:"startTime"`
	EndTime   string     `json:"endTime,omitempty"`
	Duration  *int       `json:"duration,omitempty"`
	TokenUsed *int       `json:"tokenUsed,omitempty"`
	Result    string     `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// TaskRecordTimeLayout formats StartTime and EndTime.
const TaskRecordTimeLayout = "2006-01-02 15:04:05"

// TaskPage is one page of the task history.
type TaskPage struct {
	List     []TaskRecord `json:"list"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

// Statistics summarises the task history.
type Statistics struct {
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	FailedTasks    int     `json:"failedTasks"`
	RunningTasks   int     `json:"runningTasks"`
	TotalTokens    int     `json:"totalTokens"`
	SuccessRate    float64 `json:"successRate"`
}

// TokenTrendPoint is the token total of one calendar day (MM-DD).
type TokenTrendPoint struct {
	Date   string `json:"date"`
	Tokens int    `json:"tokens"`
}

// TokenTrend is the data of GET /api/statistics/token-trend.
type TokenTrend struct {
	Trends []TokenTrendPoint `json:"trends"`
}

// DurationBucket counts tasks whose duration falls in Range.
type DurationBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// TaskAnalysis is the data of GET /api/statistics/task-analysis.
type TaskAnalysis struct {
	SuccessCount         int              `json:"successCount"`
	FailedCount          int              `json:"failedCount"`
	DurationDistribution []DurationBucket `json:"durationDistribution"`
}
