package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DriverAuto resolves to the registry's default driver.
const DriverAuto = "auto"

// ErrUnknownDriver is returned when a driver name has no registered factory.
var ErrUnknownDriver = errors.New("unknown runtime driver")

// Info pairs a driver name with its capabilities.
type Info struct {
	Name         string       `json:"name"`
	Default      bool         `json:"default"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds runtime factories keyed by driver name. The first registered
// driver becomes the default unless SetDefault picks another.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	def       string
}

// NewRegistry creates an empty runtime registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given driver name.
func (r *Registry) Register(driver string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = f
	if r.def == "" {
		r.def = driver
	}
}

// SetDefault changes the driver "auto" resolves to.
func (r *Registry) SetDefault(driver string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[driver]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	r.def = driver
	return nil
}

// Resolve returns the driver name and factory for driver. An empty name or
// "auto" resolves to the default driver.
func (r *Registry) Resolve(driver string) (string, Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	target := driver
	if target == "" || target == DriverAuto {
		if r.def == "" {
			return "", nil, fmt.Errorf("%w: no drivers registered", ErrUnknownDriver)
		}
		target = r.def
	}

	f, ok := r.factories[target]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownDriver, target)
	}
	return target, f, nil
}

// List returns every registered driver sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.factories))
	for name, f := range r.factories {
		infos = append(infos, Info{
			Name:         name,
			Default:      name == r.def,
			Capabilities: f().Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
