package headless

import (
	"errors"
	"fmt"
	"slices"

	"github.com/daehyeonmun2021/react-native-godot/internal/runtime"
)

// ErrUnknownMethod is returned by Call for methods a node does not implement.
var ErrUnknownMethod = errors.New("unknown method")

type method func(args ...any) (any, error)

// node is a scene graph node. owner is the scene root that instanced it, or
// nil for nodes added at run time.
type node struct {
	name     string
	owner    *node
	parent   *node
	children []*node
	signals  map[string][]func(args ...any)
	methods  map[string]method
}

var _ runtime.Node = (*node)(nil)

func newNode(name string) *node {
	return &node{
		name:    name,
		signals: make(map[string][]func(args ...any)),
		methods: make(map[string]method),
	}
}

func (n *node) Name() string { return n.name }

func (n *node) addChild(child *node, owner *node) {
	child.parent = n
	child.owner = owner
	n.children = append(n.children, child)
}

func (n *node) removeChild(name string) bool {
	for i, c := range n.children {
		if c.name == name {
			c.parent = nil
			n.children = slices.Delete(n.children, i, i+1)
			return true
		}
	}
	return false
}

// FindChild searches depth first, children before grandchildren at each level.
func (n *node) FindChild(name string, recursive, owned bool) (runtime.Node, bool) {
	for _, c := range n.children {
		if c.name == name && (!owned || c.owner != nil) {
			return c, true
		}
	}
	if !recursive {
		return nil, false
	}
	for _, c := range n.children {
		if found, ok := c.FindChild(name, true, owned); ok {
			return found, true
		}
	}
	return nil, false
}

func (n *node) HasConnections(signal string) bool {
	return len(n.signals[signal]) > 0
}

func (n *node) Connect(signal string, fn func(args ...any)) error {
	if fn == nil {
		return fmt.Errorf("connect %s.%s: nil callable", n.name, signal)
	}
	n.signals[signal] = append(n.signals[signal], fn)
	return nil
}

// Emit calls every connected callable in connection order.
func (n *node) Emit(signal string, args ...any) error {
	for _, fn := range n.signals[signal] {
		fn(args...)
	}
	return nil
}

func (n *node) Call(name string, args ...any) (any, error) {
	m, ok := n.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, n.name, name)
	}
	return m(args...)
}

// newAppController builds the controller node that opens and closes named
// windows under itself and reports each change on window_status_update.
func newAppController() *node {
	ctrl := newNode("AppController")

	ctrl.methods["open_window"] = func(args ...any) (any, error) {
		name, err := windowArg("open_window", args)
		if err != nil {
			return nil, err
		}
		if _, ok := ctrl.FindChild(name, false, false); !ok {
			ctrl.addChild(newNode(name), nil)
		}
		return nil, ctrl.Emit("window_status_update", name+" opened")
	}

	ctrl.methods["close_window"] = func(args ...any) (any, error) {
		name, err := windowArg("close_window", args)
		if err != nil {
			return nil, err
		}
		ctrl.removeChild(name)
		return nil, ctrl.Emit("window_status_update", name+" closed")
	}

	ctrl.methods["get_open_windows"] = func(_ ...any) (any, error) {
		names := make([]string, 0, len(ctrl.children))
		for _, c := range ctrl.children {
			names = append(names, c.name)
		}
		return names, nil
	}

	return ctrl
}

func windowArg(method string, args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s: want 1 argument, got %d", method, len(args))
	}
	name, ok := args[0].(string)
	if !ok || name == "" {
		return "", fmt.Errorf("%s: window name must be a non-empty string", method)
	}
	return name, nil
}

// buildScene returns the viewport root with the main scene and its
// AppController attached.
func buildScene(project string) *node {
	root := newNode("root")
	main := newNode("Main")
	main.methods["get_project"] = func(_ ...any) (any, error) { return project, nil }
	root.addChild(main, nil)
	main.addChild(newAppController(), main)
	return root
}
