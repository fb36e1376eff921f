// Package policy holds the built-in extension policies and the registry
// the engine resolves policy names against.
package policy

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/alexjbarnes/adb-sync/internal/engine"
	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
)

// Constructor builds a policy instance from its pipeline configuration.
type Constructor func(cfg map[string]any) (*engine.Hooks, error)

// Registry maps policy names to constructors. It satisfies
// engine.PolicyFactory.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

var _ engine.PolicyFactory = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Default returns a registry with every built-in policy registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(DateIntervalName, NewDateInterval(time.Now))
	r.Register(PreferRemoteName, PreferRemote)
	r.Register(PreferLocalName, PreferLocal)
	r.Register(SkipHiddenName, SkipHidden)

	return r
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctors[name] = ctor
}

// New builds a fresh policy instance. Unknown names wrap ErrUnknownPolicy.
func (r *Registry) New(name string, cfg map[string]any) (*engine.Hooks, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", apperrors.ErrUnknownPolicy, name, r.Names())
	}

	if cfg == nil {
		cfg = map[string]any{}
	}

	return ctor(cfg)
}

// Names returns the registered policy names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
