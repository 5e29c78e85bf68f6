package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	goruntime "runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/daehyeonmun2021/react-native-godot/internal/model"
	"github.com/daehyeonmun2021/react-native-godot/internal/runtime"
	"github.com/daehyeonmun2021/react-native-godot/internal/store"
)

// Defaults used when no option overrides them.
const (
	DefaultQueueSize     = 256
	DefaultFrameInterval = 16 * time.Millisecond
)

const tracerName = "github.com/daehyeonmun2021/react-native-godot/internal/engine"

// Instance describes the live engine instance.
type Instance struct {
	ID        string    `json:"id"`
	Driver    string    `json:"driver"`
	Args      []string  `json:"args"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is a point-in-time snapshot of the host.
type Status struct {
	State      string    `json:"state"`
	Instance   *Instance `json:"instance,omitempty"`
	Paused     bool      `json:"paused"`
	Background bool      `json:"background"`
	Frames     int64     `json:"frames"`
	QueueDepth int       `json:"queue_depth"`
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithStore records instances and dispatched tasks in s.
func WithStore(s store.Store) Option {
	return func(h *Host) { h.store = s }
}

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(n int) Option {
	return func(h *Host) { h.queueSize = n }
}

// WithFrameInterval sets how often the frame loop iterates the runtime.
func WithFrameInterval(d time.Duration) Option {
	return func(h *Host) { h.frameInterval = d }
}

// WithTracerProvider sets the provider for task spans. The global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Host) { h.tracer = tp.Tracer(tracerName) }
}

// Host owns the engine thread and the at-most-one engine instance on it.
type Host struct {
	registry      *runtime.Registry
	logger        *slog.Logger
	store         store.Store
	tracer        trace.Tracer
	queueSize     int
	frameInterval time.Duration

	queue chan *task
	quit  chan struct{}
	stop  chan struct{}
	done  chan struct{}

	sendMu    sync.RWMutex
	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	closed    atomic.Bool

	// Engine-thread state.
	rt   runtime.Runtime
	inst *Instance

	mu           sync.RWMutex
	snap         *Instance
	windowStatus string

	paused     atomic.Bool
	background atomic.Bool
	frames     atomic.Int64

	windows *windowRegistry
	broker  *LogBroker

	// current is the token of the task running on the engine thread.
	current atomic.Pointer[taskToken]
}

// NewHost creates a host that builds runtimes from reg. Call Start before
// dispatching work.
func NewHost(reg *runtime.Registry, opts ...Option) *Host {
	h := &Host{
		registry:      reg,
		logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		tracer:        otel.GetTracerProvider().Tracer(tracerName),
		queueSize:     DefaultQueueSize,
		frameInterval: DefaultFrameInterval,
		quit:          make(chan struct{}),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		windows:       newWindowRegistry(),
		broker:        NewLogBroker(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "engine")
	h.queue = make(chan *task, h.queueSize)
	return h
}

// Broker returns the log broker carrying engine log lines, one topic per
// instance ID.
func (h *Host) Broker() *LogBroker {
	return h.broker
}

// Registry returns the runtime registry the host builds instances from.
func (h *Host) Registry() *runtime.Registry {
	return h.registry
}

// Start launches the engine thread.
func (h *Host) Start() error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.startOnce.Do(func() {
		h.started.Store(true)
		go h.loop()
	})
	return nil
}

// Close stops accepting work, fails queued tasks with ErrClosed, destroys
// the live instance, and waits for the engine thread to exit or ctx to end.
func (h *Host) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.quit)

		// Wait out senders that passed the closed check.
		h.sendMu.Lock()
		h.sendMu.Unlock()

		// Never started: no loop will close done.
		h.startOnce.Do(func() { close(h.done) })
		close(h.stop)
	})

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for engine thread: %w", ctx.Err())
	}
}

// loop is the engine thread.
func (h *Host) loop() {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()
	defer close(h.done)

	ticker := time.NewTicker(h.frameInterval)
	defer ticker.Stop()

	h.logger.Info("engine thread started", "frame_interval", h.frameInterval, "queue_size", h.queueSize)

	for {
		select {
		case t := <-h.queue:
			h.runTask(t)
		case <-ticker.C:
			h.frame()
		case <-h.stop:
			h.failPending(ErrClosed)
			if h.inst != nil {
				if err := h.destroyInstance(context.Background()); err != nil {
					h.logger.Error("destroy instance on close", "error", err)
				}
			}
			h.logger.Info("engine thread stopped")
			return
		}
	}
}

// frame iterates the runtime once unless there is no instance, the instance
// is paused, or the app is in the background.
func (h *Host) frame() {
	if h.rt == nil || h.paused.Load() || h.background.Load() {
		return
	}
	if err := h.rt.Iterate(); err != nil {
		h.logger.Error("iterate failed", "instance_id", h.inst.ID, "error", err)
		return
	}
	h.frames.Add(1)
	framesTotal.Inc()
}

// Status returns a snapshot of the host.
func (h *Host) Status() Status {
	h.mu.RLock()
	inst := h.snap
	h.mu.RUnlock()

	st := Status{
		State:      model.StateUninitialized,
		Paused:     h.paused.Load(),
		Background: h.background.Load(),
		Frames:     h.frames.Load(),
		QueueDepth: len(h.queue),
	}
	if inst != nil {
		cp := *inst
		cp.Args = slices.Clone(inst.Args)
		st.State = model.StateRunning
		st.Instance = &cp
	}
	return st
}

func (h *Host) hasInstance() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap != nil
}

func (h *Host) setSnapshot(inst *Instance) {
	h.mu.Lock()
	h.snap = inst
	h.mu.Unlock()

	if inst != nil {
		instanceRunning.Set(1)
	} else {
		instanceRunning.Set(0)
	}
}

// CreateInstance starts an engine instance with the given driver and launch
// arguments on the engine thread. If an instance is already live it is
// returned unchanged with created false.
func (h *Host) CreateInstance(ctx context.Context, driver string, args []string) (Instance, bool, error) {
	if len(args) == 0 {
		return Instance{}, false, ErrEmptyArgs
	}
	name, factory, err := h.registry.Resolve(driver)
	if err != nil {
		return Instance{}, false, fmt.Errorf("resolve runtime: %w", err)
	}
	args = slices.Clone(args)

	type result struct {
		inst    Instance
		created bool
	}
	f, err := submit(ctx, h, "create_instance", false, func(e *Engine) (result, error) {
		if h.inst != nil {
			h.logger.Info("engine instance already exists", "instance_id", h.inst.ID)
			return result{inst: *h.inst}, nil
		}
		inst, err := h.startInstance(e.ctx, name, factory, args)
		if err != nil {
			return result{}, err
		}
		return result{inst: inst, created: true}, nil
	})
	if err != nil {
		return Instance{}, false, err
	}
	res, err := f.Wait(ctx)
	if err != nil {
		return Instance{}, false, err
	}
	return res.inst, res.created, nil
}

// startInstance runs on the engine thread.
func (h *Host) startInstance(ctx context.Context, driver string, factory runtime.Factory, args []string) (Instance, error) {
	inst := Instance{
		ID:        model.NewID(),
		Driver:    driver,
		Args:      args,
		CreatedAt: time.Now().UTC(),
	}

	h.broker.Open(inst.ID)
	rt := factory()
	rt.SetLogFunc(h.engineLogFunc(inst.ID))
	if err := rt.Start(args); err != nil {
		h.broker.Close(inst.ID)
		return Instance{}, fmt.Errorf("%w: %w", ErrRuntimeStart, err)
	}

	h.rt = rt
	h.inst = &inst
	h.paused.Store(false)
	h.background.Store(false)
	h.frames.Store(0)
	instancePaused.Set(0)
	h.setSnapshot(&inst)

	h.logger.Info("engine instance created", "instance_id", inst.ID, "driver", driver, "args", args)

	if h.store != nil {
		rec := &model.Instance{
			ID:        inst.ID,
			Driver:    driver,
			Args:      args,
			State:     model.StateRunning,
			CreatedAt: inst.CreatedAt,
		}
		if err := h.store.CreateInstance(ctx, rec); err != nil {
			h.logger.Error("failed to record instance", "instance_id", inst.ID, "error", err)
		}
	}

	h.refreshWindows(h.windows.all())
	return inst, nil
}

// DestroyInstance tears down the live instance on the engine thread.
func (h *Host) DestroyInstance(ctx context.Context) error {
	f, err := DispatchLabeled(ctx, h, "destroy_instance", func(e *Engine) (struct{}, error) {
		return struct{}{}, e.Destroy()
	})
	if err != nil {
		return err
	}
	_, err = f.Wait(ctx)
	return err
}

// destroyInstance runs on the engine thread. The slot is freed even when the
// runtime reports a teardown error.
func (h *Host) destroyInstance(ctx context.Context) error {
	if h.inst == nil {
		return ErrNoInstance
	}
	inst := h.inst
	err := h.rt.Destroy()

	h.rt = nil
	h.inst = nil
	h.paused.Store(false)
	instancePaused.Set(0)
	h.setSnapshot(nil)
	h.broker.Close(inst.ID)

	if h.store != nil {
		if serr := h.store.MarkInstanceDestroyed(ctx, inst.ID, time.Now().UTC()); serr != nil {
			h.logger.Error("failed to record instance teardown", "instance_id", inst.ID, "error", serr)
		}
	}

	h.logger.Info("engine instance destroyed", "instance_id", inst.ID, "frames", h.frames.Load())
	if err != nil {
		return fmt.Errorf("destroy runtime: %w", err)
	}
	return nil
}

// Pause stops the frame loop from iterating the instance.
func (h *Host) Pause() {
	h.paused.Store(true)
	instancePaused.Set(1)
	h.logger.Info("engine paused")
}

// Resume lets the frame loop iterate the instance again.
func (h *Host) Resume() {
	h.paused.Store(false)
	instancePaused.Set(0)
	h.logger.Info("engine resumed")
}

// IsPaused reports whether the frame loop is paused.
func (h *Host) IsPaused() bool {
	return h.paused.Load()
}

// FocusIn marks the app as foregrounded and forwards focus to the runtime.
func (h *Host) FocusIn(ctx context.Context) error {
	return h.lifecycle(ctx, "focus_in", false, runtime.Runtime.FocusIn)
}

// FocusOut marks the app as backgrounded and forwards the focus loss.
func (h *Host) FocusOut(ctx context.Context) error {
	return h.lifecycle(ctx, "focus_out", true, runtime.Runtime.FocusOut)
}

// AppPause marks the app as backgrounded and pauses the runtime application.
func (h *Host) AppPause(ctx context.Context) error {
	return h.lifecycle(ctx, "app_pause", true, runtime.Runtime.Pause)
}

// AppResume marks the app as foregrounded and resumes the runtime application.
func (h *Host) AppResume(ctx context.Context) error {
	return h.lifecycle(ctx, "app_resume", false, runtime.Runtime.Resume)
}

// lifecycle sets the background flag immediately and queues the runtime call
// without waiting for it. With no live instance only the flag changes.
func (h *Host) lifecycle(ctx context.Context, label string, background bool, call func(runtime.Runtime)) error {
	h.background.Store(background)
	_, err := DispatchLabeled(ctx, h, label, func(e *Engine) (struct{}, error) {
		call(e.Runtime())
		return struct{}{}, nil
	})
	if errors.Is(err, ErrNoInstance) {
		return nil
	}
	return err
}

// Crash queues a task that panics on the engine thread outside the recovery
// used for dispatched work, terminating the process.
func (h *Host) Crash(ctx context.Context) error {
	rec := &model.Task{
		ID:        model.NewID(),
		Label:     "crash",
		Status:    model.TaskPending,
		CreatedAt: time.Now().UTC(),
	}
	t := &task{
		ctx:    context.WithoutCancel(ctx),
		label:  rec.Label,
		record: rec,
		run: func(_ *Engine) error {
			h.logger.Error("deliberate engine crash requested")
			panic("engine crash requested")
		},
		fail: func(error) {},
	}
	return h.enqueue(ctx, t)
}

// engineLogFunc forwards runtime log lines to the instance's broker topic
// and the host logger.
func (h *Host) engineLogFunc(instanceID string) runtime.LogFunc {
	return func(line string, isErr bool) {
		if isErr {
			h.logger.Warn("engine log", "instance_id", instanceID, "line", line)
			h.broker.Publish(instanceID, "ERROR: "+line)
			return
		}
		h.logger.Debug("engine log", "instance_id", instanceID, "line", line)
		h.broker.Publish(instanceID, line)
	}
}
