package model

import "time"

// Task status constants.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// validTransitions maps each task status to the statuses it may move to.
// A queued task can fail without running when the instance is gone by the
// time the engine thread reaches it.
var validTransitions = map[string]map[string]bool{
	TaskPending: {
		TaskRunning: true,
		TaskFailed:  true,
	},
	TaskRunning: {
		TaskCompleted: true,
		TaskFailed:    true,
	},
}

// ValidTransition reports whether a task may move from one status to another.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is a final task status.
func IsTerminal(status string) bool {
	return status == TaskCompleted || status == TaskFailed
}

// Task is the journal record of one unit of work dispatched to the engine thread.
type Task struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	InstanceID string     `json:"instance_id,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
