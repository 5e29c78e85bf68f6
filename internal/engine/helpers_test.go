package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daehyeonmun2021/react-native-godot/internal/engine"
	"github.com/daehyeonmun2021/react-native-godot/internal/runtime"
	"github.com/daehyeonmun2021/react-native-godot/internal/runtime/headless"
)

var testArgs = []string{"--headless", "--path", "/main"}

// bareRuntime is a runtime whose scene has no AppController and whose
// teardown fails.
type bareRuntime struct{}

func (bareRuntime) Start(_ []string) error       { return nil }
func (bareRuntime) Iterate() error               { return nil }
func (bareRuntime) FocusIn()                     {}
func (bareRuntime) FocusOut()                    {}
func (bareRuntime) Pause()                       {}
func (bareRuntime) Resume()                      {}
func (bareRuntime) UpdateWindow(_ string) error  { return nil }
func (bareRuntime) API() runtime.API             { return bareAPI{} }
func (bareRuntime) SetLogFunc(_ runtime.LogFunc) {}
func (bareRuntime) Destroy() error               { return errors.New("teardown failed") }
func (bareRuntime) Capabilities() runtime.Capabilities {
	return runtime.Capabilities{Name: "bare"}
}

type bareAPI struct{}

func (bareAPI) Root() (runtime.Node, error) { return bareNode{}, nil }

type bareNode struct{}

func (bareNode) Name() string                                       { return "root" }
func (bareNode) FindChild(_ string, _, _ bool) (runtime.Node, bool) { return nil, false }
func (bareNode) HasConnections(_ string) bool                       { return false }
func (bareNode) Connect(_ string, _ func(args ...any)) error        { return nil }
func (bareNode) Emit(_ string, _ ...any) error                      { return nil }
func (bareNode) Call(_ string, _ ...any) (any, error)               { return nil, nil }

func newRegistry() *runtime.Registry {
	reg := runtime.NewRegistry()
	reg.Register(headless.Driver, headless.Factory)
	reg.Register("bare", func() runtime.Runtime { return bareRuntime{} })
	return reg
}

func newTestHost(t *testing.T, opts ...engine.Option) *engine.Host {
	t.Helper()
	opts = append([]engine.Option{engine.WithFrameInterval(time.Millisecond)}, opts...)
	h := engine.NewHost(newRegistry(), opts...)
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Close(ctx); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return h
}

func createInstance(t *testing.T, h *engine.Host, args ...string) engine.Instance {
	t.Helper()
	if len(args) == 0 {
		args = testArgs
	}
	inst, created, err := h.CreateInstance(context.Background(), headless.Driver, args)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	if !created {
		t.Fatal("CreateInstance: created = false, want true")
	}
	return inst
}

// flush waits until every task dispatched so far has run.
func flush(t *testing.T, h *engine.Host) {
	t.Helper()
	f, err := engine.Dispatch(context.Background(), h, func(_ *engine.Engine) (struct{}, error) {
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("flush dispatch: %v", err)
	}
	if _, err := f.Wait(context.Background()); err != nil {
		t.Fatalf("flush wait: %v", err)
	}
}

// eventually polls cond until it holds or timeout passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// withHeadless fetches the live headless runtime on the engine thread and
// applies fn to it.
func withHeadless[T any](t *testing.T, h *engine.Host, fn func(r *headless.Runtime) T) T {
	t.Helper()
	f, err := engine.Dispatch(context.Background(), h, func(e *engine.Engine) (T, error) {
		return fn(e.Runtime().(*headless.Runtime)), nil
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	v, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return v
}
