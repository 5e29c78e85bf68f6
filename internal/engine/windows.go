package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// WindowUpdateFunc is called on the engine thread whenever the window a view
// renders must be refreshed, before the runtime is told about it.
type WindowUpdateFunc func(name string)

// WindowView is a view registered to render a named window.
type WindowView struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

type windowEntry struct {
	WindowView
	update WindowUpdateFunc
}

// windowRegistry binds view handles to window names. A handle maps to at most
// one name; several handles may show the same window.
type windowRegistry struct {
	mu    sync.Mutex
	views map[string]windowEntry
}

func newWindowRegistry() *windowRegistry {
	return &windowRegistry{views: make(map[string]windowEntry)}
}

func (r *windowRegistry) register(name, handle string, fn WindowUpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.views[handle]; ok && cur.Name != name {
		return fmt.Errorf("%w: handle %q is bound to %q", ErrWindowHandleTaken, handle, cur.Name)
	}
	r.views[handle] = windowEntry{WindowView: WindowView{Name: name, Handle: handle}, update: fn}
	return nil
}

func (r *windowRegistry) unregister(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.views[handle]; !ok {
		return false
	}
	delete(r.views, handle)
	return true
}

// all returns every entry sorted by handle.
func (r *windowRegistry) all() []windowEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]windowEntry, 0, len(r.views))
	for _, v := range r.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func (r *windowRegistry) named(name string) []windowEntry {
	var out []windowEntry
	for _, v := range r.all() {
		if v.Name == name {
			out = append(out, v)
		}
	}
	return out
}

// RegisterWindow binds a view handle to a window name. Re-registering a
// handle under the same name replaces its update func; a different name is
// rejected with ErrWindowHandleTaken. If an instance is live the window is
// refreshed.
func (h *Host) RegisterWindow(ctx context.Context, name, handle string, fn WindowUpdateFunc) error {
	if name == "" || handle == "" {
		return fmt.Errorf("register window: name and handle are required")
	}
	if err := h.windows.register(name, handle, fn); err != nil {
		return err
	}
	h.logger.Info("window registered", "window", name, "handle", handle)

	err := h.UpdateWindow(ctx, name)
	if errors.Is(err, ErrNoInstance) || errors.Is(err, ErrNotStarted) {
		return nil
	}
	return err
}

// UnregisterWindow removes a view handle. It reports whether the handle was
// registered.
func (h *Host) UnregisterWindow(handle string) bool {
	ok := h.windows.unregister(handle)
	if ok {
		h.logger.Info("window unregistered", "handle", handle)
	}
	return ok
}

// Windows lists registered views sorted by handle.
func (h *Host) Windows() []WindowView {
	entries := h.windows.all()
	out := make([]WindowView, len(entries))
	for i, e := range entries {
		out[i] = e.WindowView
	}
	return out
}

// UpdateWindow refreshes every view of the named window and tells the
// runtime, then waits for the engine thread to finish.
func (h *Host) UpdateWindow(ctx context.Context, name string) error {
	return h.waitRefresh(ctx, "update_window", func() []windowEntry {
		return h.windows.named(name)
	}, name)
}

// UpdateWindows refreshes every registered view.
func (h *Host) UpdateWindows(ctx context.Context) error {
	return h.waitRefresh(ctx, "update_windows", h.windows.all, "")
}

func (h *Host) waitRefresh(ctx context.Context, label string, entries func() []windowEntry, name string) error {
	f, err := DispatchLabeled(ctx, h, label, func(e *Engine) (struct{}, error) {
		list := entries()
		if name != "" && len(list) == 0 {
			// No views yet; the runtime still learns about the window.
			return struct{}{}, h.rt.UpdateWindow(name)
		}
		return struct{}{}, h.refreshWindows(list)
	})
	if err != nil {
		return err
	}
	_, err = f.Wait(ctx)
	return err
}

// refreshWindows runs on the engine thread with a live instance. Each window
// name reaches the runtime once.
func (h *Host) refreshWindows(entries []windowEntry) error {
	seen := make(map[string]bool)
	var firstErr error
	for _, v := range entries {
		if v.update != nil {
			v.update(v.Name)
		}
		if seen[v.Name] {
			continue
		}
		seen[v.Name] = true
		if err := h.rt.UpdateWindow(v.Name); err != nil {
			h.logger.Error("update window failed", "window", v.Name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("update window %s: %w", v.Name, err)
			}
		}
	}
	return firstErr
}
