package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/daehyeonmun2021/react-native-godot/internal/model"
	"github.com/daehyeonmun2021/react-native-godot/internal/runtime"
)

// DefaultLabel names dispatched work in the journal and metrics when the
// caller gives none.
const DefaultLabel = "task"

// threadKey carries the taskToken of the task a context was handed to.
type threadKey struct{}

// taskToken identifies one run of a task. The host holds the running task's
// token, so a context that outlives its task no longer matches.
type taskToken struct {
	host *Host
}

// Engine is the capability handed to dispatched work. It is only valid for
// the duration of the task it was passed to.
type Engine struct {
	h   *Host
	ctx context.Context
}

// Context returns the task context. Dispatching with it from inside the task
// runs the nested work inline. Once the task returns it dispatches like any
// other context. It must not be handed to goroutines the task starts: while
// the task is running their dispatches would also run inline, off the engine
// thread.
func (e *Engine) Context() context.Context { return e.ctx }

// Runtime returns the live runtime, or nil when there is no instance.
func (e *Engine) Runtime() runtime.Runtime { return e.h.rt }

// API returns the scene graph entry point of the live runtime.
func (e *Engine) API() (runtime.API, error) {
	if e.h.rt == nil {
		return nil, ErrNoInstance
	}
	return e.h.rt.API(), nil
}

// Instance returns the live instance.
func (e *Engine) Instance() (Instance, bool) {
	if e.h.inst == nil {
		return Instance{}, false
	}
	return *e.h.inst, true
}

// Destroy tears down the live instance from inside a task.
func (e *Engine) Destroy() error {
	return e.h.destroyInstance(e.ctx)
}

// Future is the single-resolution result of dispatched work.
type Future[T any] struct {
	id   string
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any](id string) *Future[T] {
	return &Future[T]{id: id, done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// ID returns the journal ID of the task, or "" for inline work.
func (f *Future[T]) ID() string { return f.id }

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the work completes or ctx ends. Abandoning a wait does
// not cancel the task.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// task is one queued unit of engine-thread work.
type task struct {
	ctx          context.Context
	label        string
	needInstance bool
	record       *model.Task
	enqueued     time.Time

	// run executes the work and resolves the future; fail resolves it without
	// running.
	run  func(e *Engine) error
	fail func(err error)
}

// Dispatch schedules work on the host's engine thread and returns a future
// for its result. Work dispatched from one goroutine runs in dispatch order.
func Dispatch[T any](ctx context.Context, h *Host, work func(e *Engine) (T, error)) (*Future[T], error) {
	return DispatchLabeled(ctx, h, DefaultLabel, work)
}

// DispatchLabeled is Dispatch with a label recorded in the journal, the
// metrics, and the task span.
func DispatchLabeled[T any](ctx context.Context, h *Host, label string, work func(e *Engine) (T, error)) (*Future[T], error) {
	return submit(ctx, h, label, true, work)
}

func submit[T any](ctx context.Context, h *Host, label string, needInstance bool, work func(e *Engine) (T, error)) (*Future[T], error) {
	// Already inside the running task on this host's engine thread: queuing
	// would deadlock.
	if tok, ok := ctx.Value(threadKey{}).(*taskToken); ok && tok != nil && h.current.Load() == tok {
		f := newFuture[T]("")
		if needInstance && h.inst == nil {
			var zero T
			f.resolve(zero, ErrNoInstance)
			return f, nil
		}
		v, err := invoke(&Engine{h: h, ctx: ctx}, work)
		f.resolve(v, err)
		return f, nil
	}

	if needInstance && !h.hasInstance() {
		return nil, ErrNoInstance
	}

	rec := &model.Task{
		ID:        model.NewID(),
		Label:     label,
		Status:    model.TaskPending,
		CreatedAt: time.Now().UTC(),
	}
	if snap := h.Status(); snap.Instance != nil {
		rec.InstanceID = snap.Instance.ID
	}

	f := newFuture[T](rec.ID)
	t := &task{
		ctx:          context.WithoutCancel(ctx),
		label:        label,
		needInstance: needInstance,
		record:       rec,
		run: func(e *Engine) error {
			v, err := invoke(e, work)
			f.resolve(v, err)
			return err
		},
		fail: func(err error) {
			var zero T
			f.resolve(zero, err)
		},
	}

	if err := h.enqueue(ctx, t); err != nil {
		return nil, err
	}
	return f, nil
}

// invoke runs work, converting a panic into a PanicError.
func invoke[T any](e *Engine, work func(e *Engine) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return work(e)
}

// enqueue hands t to the engine thread, blocking while the queue is full.
func (h *Host) enqueue(ctx context.Context, t *task) error {
	h.sendMu.RLock()
	defer h.sendMu.RUnlock()

	if h.closed.Load() {
		return ErrClosed
	}
	if !h.started.Load() {
		return ErrNotStarted
	}

	h.journalCreate(t.record)
	t.enqueued = time.Now()

	select {
	case h.queue <- t:
		queueDepth.Inc()
		return nil
	default:
	}

	select {
	case h.queue <- t:
		queueDepth.Inc()
		return nil
	case <-h.quit:
		h.journalFinish(t.record, ErrClosed)
		return ErrClosed
	case <-ctx.Done():
		h.journalFinish(t.record, ErrQueueFull)
		return fmt.Errorf("%w: %w", ErrQueueFull, ctx.Err())
	}
}

// runTask executes t on the engine thread.
func (h *Host) runTask(t *task) {
	queueDepth.Dec()
	queueWait.Observe(time.Since(t.enqueued).Seconds())

	ctx, span := h.tracer.Start(t.ctx, "engine.task",
		trace.WithAttributes(
			attribute.String("task.id", t.record.ID),
			attribute.String("task.label", t.label),
		),
	)
	defer span.End()
	tok := &taskToken{host: h}
	ctx = context.WithValue(ctx, threadKey{}, tok)

	if t.needInstance && h.inst == nil {
		span.SetStatus(codes.Error, ErrNoInstance.Error())
		t.fail(ErrNoInstance)
		h.journalFinish(t.record, ErrNoInstance)
		tasksTotal.WithLabelValues(t.label, model.TaskFailed).Inc()
		return
	}

	h.journalRunning(t.record)
	start := time.Now()
	err := h.runCurrent(ctx, tok, t)
	elapsed := time.Since(start)

	status := model.TaskCompleted
	if err != nil {
		status = model.TaskFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Warn("engine task failed", "task_id", t.record.ID, "label", t.label, "error", err)
	}
	tasksTotal.WithLabelValues(t.label, status).Inc()
	taskDuration.WithLabelValues(t.label).Observe(elapsed.Seconds())
	h.journalFinishAt(t.record, start, err)
}

// runCurrent runs t with tok marked as the running task.
func (h *Host) runCurrent(ctx context.Context, tok *taskToken, t *task) error {
	h.current.Store(tok)
	defer h.current.Store(nil)
	return t.run(&Engine{h: h, ctx: ctx})
}

// failPending resolves every queued task with err without running it.
func (h *Host) failPending(err error) {
	for {
		select {
		case t := <-h.queue:
			queueDepth.Dec()
			t.fail(err)
			h.journalFinish(t.record, err)
		default:
			return
		}
	}
}
