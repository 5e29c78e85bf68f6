package store

import (
	"context"
	"errors"
	"time"

	"github.com/daehyeonmun2021/react-native-godot/internal/model"
)

// ErrInvalidTransition is returned when a task status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// TaskStats holds aggregate statistics over dispatched tasks.
type TaskStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store is the journal of engine instances and the tasks dispatched to them.
type Store interface {
	CreateInstance(ctx context.Context, inst *model.Instance) error
	GetInstance(ctx context.Context, id string) (*model.Instance, error)
	ListInstances(ctx context.Context, limit int) ([]*model.Instance, error)
	MarkInstanceDestroyed(ctx context.Context, id string, at time.Time) error

	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, limit, offset int) ([]*model.Task, int, error)
	UpdateTaskStatus(ctx context.Context, id, status string) error
	FinishTask(ctx context.Context, t *model.Task) error
	GetTaskStats(ctx context.Context) (*TaskStats, error)

	Close() error
}
