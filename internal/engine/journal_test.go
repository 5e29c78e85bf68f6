package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daehyeonmun2021/react-native-godot/internal/engine"
	"github.com/daehyeonmun2021/react-native-godot/internal/model"
	"github.com/daehyeonmun2021/react-native-godot/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// waitForTaskStatus polls the store until the task reaches the expected status.
func waitForTaskStatus(t *testing.T, s store.Store, id, expected string) *model.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := s.GetTask(context.Background(), id)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task.Status == expected {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach status %q", id, expected)
	return nil
}

func TestJournalRecordsTasks(t *testing.T) {
	s := newTestStore(t)
	h := newTestHost(t, engine.WithStore(s))
	inst := createInstance(t, h)
	ctx := context.Background()

	ok, err := engine.DispatchLabeled(ctx, h, "ok", func(_ *engine.Engine) (int, error) { return 1, nil })
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	bad, err := engine.DispatchLabeled(ctx, h, "bad", func(_ *engine.Engine) (int, error) {
		return 0, errors.New("scene not ready")
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ok.Wait(ctx)
	bad.Wait(ctx)

	done := waitForTaskStatus(t, s, ok.ID(), model.TaskCompleted)
	if done.Label != "ok" {
		t.Errorf("Label = %q, want ok", done.Label)
	}
	if done.InstanceID != inst.ID {
		t.Errorf("InstanceID = %q, want %q", done.InstanceID, inst.ID)
	}
	if done.StartedAt == nil || done.FinishedAt == nil || done.DurationMS == nil {
		t.Errorf("completed task missing timing: %+v", done)
	}

	failed := waitForTaskStatus(t, s, bad.ID(), model.TaskFailed)
	if failed.Error != "scene not ready" {
		t.Errorf("Error = %q, want %q", failed.Error, "scene not ready")
	}
}

func TestJournalRecordsInstanceLifecycle(t *testing.T) {
	s := newTestStore(t)
	h := newTestHost(t, engine.WithStore(s))
	inst := createInstance(t, h)
	ctx := context.Background()

	rec, err := s.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if rec.State != model.StateRunning || rec.Driver != inst.Driver {
		t.Errorf("instance record = %+v, want running %s", rec, inst.Driver)
	}

	if err := h.DestroyInstance(ctx); err != nil {
		t.Fatalf("DestroyInstance: %v", err)
	}
	rec, err = s.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if rec.State != model.StateDestroyed || rec.DestroyedAt == nil {
		t.Errorf("instance record after destroy = %+v, want destroyed", rec)
	}
}

func TestJournalRecordsTaskFailedBeforeRunning(t *testing.T) {
	s := newTestStore(t)
	h := newTestHost(t, engine.WithStore(s))
	createInstance(t, h)
	ctx := context.Background()

	release := make(chan struct{})
	running := make(chan struct{})
	first, err := engine.Dispatch(ctx, h, func(e *engine.Engine) (struct{}, error) {
		close(running)
		<-release
		return struct{}{}, e.Destroy()
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	<-running
	orphan, err := engine.Dispatch(ctx, h, func(_ *engine.Engine) (struct{}, error) { return struct{}{}, nil })
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	close(release)
	first.Wait(ctx)
	orphan.Wait(ctx)

	task := waitForTaskStatus(t, s, orphan.ID(), model.TaskFailed)
	if task.StartedAt != nil {
		t.Errorf("StartedAt = %v, want nil for a task that never ran", task.StartedAt)
	}
	if task.Error != engine.ErrNoInstance.Error() {
		t.Errorf("Error = %q, want %q", task.Error, engine.ErrNoInstance.Error())
	}
}
