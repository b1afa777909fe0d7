package domain

import "time"

// TaskResult is the immutable outcome of one task within a workflow run.
// Retried attempts collapse into a single final result carrying the number
// of retries consumed.
type TaskResult struct {
	TaskID     string        `json:"task_id"`
	Status     TaskStatus    `json:"status"`
	Output     any           `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
	AgentID    string        `json:"agent_id,omitempty"`
	RetryCount int           `json:"retry_count"`
}
