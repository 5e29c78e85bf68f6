package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoInstance is returned for engine-thread work when no engine instance
	// is live, including tasks queued before a teardown that ran first.
	ErrNoInstance = errors.New("no engine instance")

	// ErrEmptyArgs is returned when an instance is created without launch arguments.
	ErrEmptyArgs = errors.New("launch arguments must not be empty")

	// ErrRuntimeStart wraps a runtime that refused its launch arguments.
	ErrRuntimeStart = errors.New("start runtime")

	// ErrQueueFull is returned when the caller's context ends while waiting
	// for room in the dispatch queue.
	ErrQueueFull = errors.New("dispatch queue full")

	// ErrClosed is returned once the host has been closed.
	ErrClosed = errors.New("engine host closed")

	// ErrNotStarted is returned when work is dispatched before Start.
	ErrNotStarted = errors.New("engine host not started")

	// ErrNoController is returned when the scene has no AppController node.
	ErrNoController = errors.New("AppController not found")

	// ErrWindowHandleTaken is returned when a view handle is already bound to
	// a different window name.
	ErrWindowHandleTaken = errors.New("window handle registered under another name")
)

// PanicError reports a panic recovered from dispatched work.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("engine task panicked: %v", e.Value)
}
