package engine

import (
	"context"
	"fmt"
	"strings"
)

const (
	controllerNode     = "AppController"
	windowStatusSignal = "window_status_update"
)

// OpenWindow asks the scene's AppController to open the named window and
// waits for the engine thread to finish.
func (h *Host) OpenWindow(ctx context.Context, name string) (string, error) {
	return h.controllerCall(ctx, "open_window", name)
}

// CloseWindow asks the scene's AppController to close the named window.
func (h *Host) CloseWindow(ctx context.Context, name string) (string, error) {
	return h.controllerCall(ctx, "close_window", name)
}

// LastWindowStatus returns the most recent window_status_update message.
func (h *Host) LastWindowStatus() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.windowStatus
}

// controllerCall returns the task ID of the dispatched call.
func (h *Host) controllerCall(ctx context.Context, method, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%s: window name is required", method)
	}
	f, err := DispatchLabeled(ctx, h, method, func(e *Engine) (struct{}, error) {
		return struct{}{}, h.callController(e, method, name)
	})
	if err != nil {
		return "", err
	}
	_, err = f.Wait(ctx)
	return f.ID(), err
}

// callController looks the controller up on every call; scene nodes are
// never cached across tasks.
func (h *Host) callController(e *Engine, method string, args ...any) error {
	api, err := e.API()
	if err != nil {
		return err
	}
	root, err := api.Root()
	if err != nil {
		return fmt.Errorf("scene root: %w", err)
	}
	ctrl, ok := root.FindChild(controllerNode, true, false)
	if !ok {
		return ErrNoController
	}

	if !ctrl.HasConnections(windowStatusSignal) {
		if err := ctrl.Connect(windowStatusSignal, h.onWindowStatus); err != nil {
			return fmt.Errorf("connect %s: %w", windowStatusSignal, err)
		}
	}

	if _, err := ctrl.Call(method, args...); err != nil {
		return fmt.Errorf("call %s.%s: %w", controllerNode, method, err)
	}
	return nil
}

func (h *Host) onWindowStatus(args ...any) {
	status := fmt.Sprint(args...)

	h.mu.Lock()
	h.windowStatus = status
	inst := h.snap
	h.mu.Unlock()

	h.logger.Info("window status update", "status", status)
	if inst != nil {
		h.broker.Publish(inst.ID, windowStatusSignal+": "+status)
	}
}
