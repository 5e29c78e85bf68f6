package runtime

// LogFunc receives one engine log line. isErr marks lines the runtime wrote to
// its error stream.
type LogFunc func(line string, isErr bool)

// Runtime is a native engine runtime. Every method except Capabilities must be
// called from the engine thread.
type Runtime interface {
	// Start boots the runtime with Godot-style launch arguments.
	Start(args []string) error

	// Iterate advances the runtime by one frame.
	Iterate() error

	FocusIn()
	FocusOut()
	Pause()
	Resume()

	// UpdateWindow tells the runtime the surface backing the named window changed.
	UpdateWindow(name string) error

	// API exposes the scene graph of a started runtime.
	API() API

	SetLogFunc(fn LogFunc)

	// Destroy tears the runtime down. A destroyed runtime cannot be restarted.
	Destroy() error

	Capabilities() Capabilities
}

// API is the entry point into a running engine's scene graph.
type API interface {
	Root() (Node, error)
}

// Node is one object in the engine's scene graph. Nodes are owned by the
// engine and must not be retained across engine-thread tasks.
type Node interface {
	Name() string

	// FindChild looks up a descendant by name. With recursive false only direct
	// children are checked; with owned true only nodes that have a scene owner
	// are considered.
	FindChild(name string, recursive, owned bool) (Node, bool)

	HasConnections(signal string) bool
	Connect(signal string, fn func(args ...any)) error
	Emit(signal string, args ...any) error
	Call(method string, args ...any) (any, error)
}

// Capabilities describes a runtime driver.
type Capabilities struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	DisplayDrivers   []string `json:"display_drivers"`
	RenderingDrivers []string `json:"rendering_drivers"`
}

// Factory builds a fresh, unstarted runtime.
type Factory func() Runtime
