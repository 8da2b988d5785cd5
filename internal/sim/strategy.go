package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrStrategyExists is returned when a name is registered twice.
var ErrStrategyExists = errors.New("sim: strategy already registered")

// Strategy decides where an agent wants to go. A fresh instance is created
// for every agent, so implementations may keep private state (path caches,
// timers) without synchronization.
type Strategy interface {
	// Initialize is called once when the strategy is attached to a.
	Initialize(a *Agent)

	// Run is called once per tick while a has a goal.
	// dt is the simulated time since the last call. Returns a heading in radians.
	Run(a *Agent, dt float64) float64
}

// Factory creates a new, independent Strategy.
type Factory func() Strategy

// Registry maps strategy names to factories. It is additive only: names
// cannot be replaced or removed once registered.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("sim: invalid strategy registration %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %q", ErrStrategyExists, name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for startup code where a duplicate is a bug.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Instantiate creates a new strategy. ok is false for unknown names.
func (r *Registry) Instantiate(name string) (Strategy, bool) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return factory(), true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
