package runtime_test

import (
	"github.com/daehyeonmun2021/react-native-godot/internal/runtime"
)

// stubRuntime is a minimal Runtime used to exercise the registry.
type stubRuntime struct {
	name string
}

func (s *stubRuntime) Start(_ []string) error       { return nil }
func (s *stubRuntime) Iterate() error               { return nil }
func (s *stubRuntime) FocusIn()                     {}
func (s *stubRuntime) FocusOut()                    {}
func (s *stubRuntime) Pause()                       {}
func (s *stubRuntime) Resume()                      {}
func (s *stubRuntime) UpdateWindow(_ string) error  { return nil }
func (s *stubRuntime) API() runtime.API             { return nil }
func (s *stubRuntime) SetLogFunc(_ runtime.LogFunc) {}
func (s *stubRuntime) Destroy() error               { return nil }
func (s *stubRuntime) Capabilities() runtime.Capabilities {
	return runtime.Capabilities{Name: s.name, Version: "test"}
}

// Compile-time check that stubRuntime satisfies the Runtime interface.
var _ runtime.Runtime = (*stubRuntime)(nil)

func stubFactory(name string) runtime.Factory {
	return func() runtime.Runtime { return &stubRuntime{name: name} }
}
