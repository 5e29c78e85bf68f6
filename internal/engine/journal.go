package engine

import (
	"context"
	"time"

	"github.com/daehyeonmun2021/react-native-godot/internal/model"
)

// Journal writes are best effort: a failing store is logged and never fails
// the task.

func (h *Host) journalCreate(rec *model.Task) {
	if h.store == nil {
		return
	}
	if err := h.store.CreateTask(context.Background(), rec); err != nil {
		h.logger.Error("failed to record task", "task_id", rec.ID, "error", err)
	}
}

func (h *Host) journalRunning(rec *model.Task) {
	if h.store == nil {
		return
	}
	if err := h.store.UpdateTaskStatus(context.Background(), rec.ID, model.TaskRunning); err != nil {
		h.logger.Error("failed to record task start", "task_id", rec.ID, "error", err)
	}
}

// journalFinish records a task that ended without running.
func (h *Host) journalFinish(rec *model.Task, err error) {
	h.finishRecord(rec, nil, err)
}

// journalFinishAt records a task that ran from start until now.
func (h *Host) journalFinishAt(rec *model.Task, start time.Time, err error) {
	started := start.UTC()
	h.finishRecord(rec, &started, err)
}

func (h *Host) finishRecord(rec *model.Task, started *time.Time, taskErr error) {
	if h.store == nil {
		return
	}
	now := time.Now().UTC()
	out := *rec
	out.Status = model.TaskCompleted
	out.StartedAt = started
	out.FinishedAt = &now
	if started != nil {
		dur := int(now.Sub(*started).Milliseconds())
		out.DurationMS = &dur
	}
	if taskErr != nil {
		out.Status = model.TaskFailed
		out.Error = taskErr.Error()
	}
	if err := h.store.FinishTask(context.Background(), &out); err != nil {
		h.logger.Error("failed to record task result", "task_id", rec.ID, "error", err)
	}
}
