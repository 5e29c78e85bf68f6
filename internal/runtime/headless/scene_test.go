package headless

import (
	"errors"
	"testing"
)

func TestFindAppController(t *testing.T) {
	root := buildScene("/main")

	if _, ok := root.FindChild("AppController", false, false); ok {
		t.Error("non-recursive search should not reach AppController")
	}
	ctrl, ok := root.FindChild("AppController", true, false)
	if !ok {
		t.Fatal("AppController not found")
	}
	if ctrl.Name() != "AppController" {
		t.Errorf("Name() = %q, want AppController", ctrl.Name())
	}
	if _, ok := root.FindChild("AppController", true, true); !ok {
		t.Error("AppController should be owned by the main scene")
	}
}

func TestOwnedSearchSkipsRuntimeNodes(t *testing.T) {
	root := buildScene("/main")
	ctrl, _ := root.FindChild("AppController", true, false)

	if _, err := ctrl.Call("open_window", "subwindow"); err != nil {
		t.Fatalf("open_window: %v", err)
	}
	if _, ok := root.FindChild("subwindow", true, false); !ok {
		t.Error("subwindow not found with owned=false")
	}
	if _, ok := root.FindChild("subwindow", true, true); ok {
		t.Error("subwindow found with owned=true, want skipped")
	}
}

func TestWindowStatusUpdates(t *testing.T) {
	root := buildScene("/main")
	ctrl, _ := root.FindChild("AppController", true, false)

	if ctrl.HasConnections("window_status_update") {
		t.Fatal("fresh controller should have no connections")
	}
	var got []string
	if err := ctrl.Connect("window_status_update", func(args ...any) {
		got = append(got, args[0].(string))
	}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !ctrl.HasConnections("window_status_update") {
		t.Error("HasConnections = false after Connect")
	}

	for _, m := range []string{"open_window", "open_window", "close_window"} {
		if _, err := ctrl.Call(m, "subwindow"); err != nil {
			t.Fatalf("%s: %v", m, err)
		}
	}

	want := []string{"subwindow opened", "subwindow opened", "subwindow closed"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("update[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	open, err := ctrl.Call("get_open_windows")
	if err != nil {
		t.Fatalf("get_open_windows: %v", err)
	}
	if names := open.([]string); len(names) != 0 {
		t.Errorf("open windows = %v, want none", names)
	}
}

func TestCallErrors(t *testing.T) {
	root := buildScene("/main")
	ctrl, _ := root.FindChild("AppController", true, false)

	if _, err := ctrl.Call("teleport"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("Call error = %v, want ErrUnknownMethod", err)
	}
	if _, err := ctrl.Call("open_window"); err == nil {
		t.Error("open_window with no args should fail")
	}
	if _, err := ctrl.Call("open_window", 42); err == nil {
		t.Error("open_window with a non-string should fail")
	}
	if err := ctrl.Connect("window_status_update", nil); err == nil {
		t.Error("Connect with nil callable should fail")
	}
}

func TestMainSceneProject(t *testing.T) {
	root := buildScene("main.pck")
	main, ok := root.FindChild("Main", false, false)
	if !ok {
		t.Fatal("Main not found")
	}
	got, err := main.Call("get_project")
	if err != nil {
		t.Fatalf("get_project: %v", err)
	}
	if got != "main.pck" {
		t.Errorf("get_project = %v, want main.pck", got)
	}
}
