// Package headless implements an in-process engine runtime with a small scene
// tree. It stands in for the native library in development servers and tests.
package headless

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/daehyeonmun2021/react-native-godot/internal/runtime"
)

// Driver is the registry name of the headless runtime.
const Driver = "headless"

// Version reported in Capabilities and the startup banner.
const Version = "4.4.stable.headless"

var (
	ErrNotStarted     = errors.New("runtime not started")
	ErrAlreadyStarted = errors.New("runtime already started")
	ErrDestroyed      = errors.New("runtime destroyed")
)

// Runtime is the headless runtime. Like a native runtime it is confined to
// the engine thread; only Frames and the accessor methods documented as such
// are safe from other goroutines.
type Runtime struct {
	opts      LaunchOptions
	started   bool
	destroyed bool
	focused   bool
	paused    bool
	root      *node
	logf      runtime.LogFunc
	updates   map[string]int

	frames atomic.Int64
}

var _ runtime.Runtime = (*Runtime)(nil)

// New returns an unstarted headless runtime.
func New() *Runtime {
	return &Runtime{updates: make(map[string]int)}
}

// Factory is the runtime.Factory for the headless driver.
func Factory() runtime.Runtime { return New() }

func (r *Runtime) Start(args []string) error {
	if r.destroyed {
		return ErrDestroyed
	}
	if r.started {
		return ErrAlreadyStarted
	}
	opts, err := ParseArgs(args)
	if err != nil {
		return err
	}

	r.opts = opts
	r.root = buildScene(opts.Project())
	r.started = true
	r.focused = true

	r.log(false, "Godot Engine v%s", Version)
	if opts.Verbose {
		r.log(false, "launch args: %s", strings.Join(args, " "))
		r.log(false, "display driver: %s, rendering driver: %s, rendering method: %s",
			opts.DisplayDriver, orDefault(opts.RenderingDriver), orDefault(opts.RenderingMethod))
	}
	if opts.RemoteDebug != "" {
		r.log(true, "remote debugger at %s unavailable in headless mode", opts.RemoteDebug)
	}
	return nil
}

func (r *Runtime) Iterate() error {
	if err := r.ready(); err != nil {
		return err
	}
	r.frames.Add(1)
	return nil
}

func (r *Runtime) FocusIn() {
	r.focused = true
	r.verbose("focus in")
}

func (r *Runtime) FocusOut() {
	r.focused = false
	r.verbose("focus out")
}

func (r *Runtime) Pause() {
	r.paused = true
	r.verbose("application paused")
}

func (r *Runtime) Resume() {
	r.paused = false
	r.verbose("application resumed")
}

func (r *Runtime) UpdateWindow(name string) error {
	if err := r.ready(); err != nil {
		return err
	}
	r.updates[name]++
	r.verbose("window %s updated", name)
	return nil
}

func (r *Runtime) API() runtime.API { return api{r} }

func (r *Runtime) SetLogFunc(fn runtime.LogFunc) { r.logf = fn }

func (r *Runtime) Destroy() error {
	if r.destroyed {
		return ErrDestroyed
	}
	r.destroyed = true
	r.started = false
	r.root = nil
	r.log(false, "engine shut down after %d frames", r.frames.Load())
	return nil
}

func (r *Runtime) Capabilities() runtime.Capabilities {
	return runtime.Capabilities{
		Name:             Driver,
		Version:          Version,
		DisplayDrivers:   []string{DisplayEmbedded, DisplayHeadless},
		RenderingDrivers: []string{"opengl3", "metal", "vulkan"},
	}
}

// Frames returns the number of iterated frames. Safe from any goroutine.
func (r *Runtime) Frames() int64 { return r.frames.Load() }

// Options returns the parsed launch options.
func (r *Runtime) Options() LaunchOptions { return r.opts }

// Focused reports whether the runtime has window focus.
func (r *Runtime) Focused() bool { return r.focused }

// Paused reports whether the application is paused.
func (r *Runtime) Paused() bool { return r.paused }

// WindowUpdates returns how many times UpdateWindow was called for name.
func (r *Runtime) WindowUpdates(name string) int { return r.updates[name] }

func (r *Runtime) ready() error {
	if r.destroyed {
		return ErrDestroyed
	}
	if !r.started {
		return ErrNotStarted
	}
	return nil
}

func (r *Runtime) log(isErr bool, format string, args ...any) {
	if r.logf != nil {
		r.logf(fmt.Sprintf(format, args...), isErr)
	}
}

func (r *Runtime) verbose(format string, args ...any) {
	if r.opts.Verbose {
		r.log(false, format, args...)
	}
}

func orDefault(s string) string {
	if s == "" {
		return "default"
	}
	return s
}

type api struct{ r *Runtime }

func (a api) Root() (runtime.Node, error) {
	if err := a.r.ready(); err != nil {
		return nil, err
	}
	return a.r.root, nil
}
