package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicate is returned when a model name is registered twice anywhere
// in a registry chain.
var ErrDuplicate = errors.New("duplicate model registration")

// ErrNotFound is returned when no registry in the chain binds a name.
var ErrNotFound = errors.New("model not found")

// Registry maps model names to adapters. Registries compose into a chain:
// a process-wide registry holds real models and per-pipeline children add
// test doubles. Lookups fall through to the parent; duplicate names are
// rejected across the whole chain, so no shadowing can occur.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
	parent *Registry
}

// NewRegistry creates an empty root registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Child creates a registry that falls through to this one on lookup.
func (r *Registry) Child() *Registry {
	return &Registry{models: make(map[string]Model), parent: r}
}

// Register binds a name to a model. The name must be unused across the
// entire chain.
func (r *Registry) Register(name string, model Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	if r.parent != nil {
		if _, err := r.parent.Lookup(name); err == nil {
			return fmt.Errorf("%w: %q already bound in parent registry", ErrDuplicate, name)
		}
	}
	r.models[name] = model
	return nil
}

// Lookup finds a model by name, searching this registry and then the
// parent chain. The error lists every known name across the chain.
func (r *Registry) Lookup(name string) (Model, error) {
	r.mu.RLock()
	model, ok := r.models[name]
	r.mu.RUnlock()
	if ok {
		return model, nil
	}
	if r.parent != nil {
		if model, err := r.parent.Lookup(name); err == nil {
			return model, nil
		}
	}
	return nil, fmt.Errorf("%w: %q (known models: %s)", ErrNotFound, name,
		strings.Join(r.List(), ", "))
}

// List returns the sorted union of names across the chain.
func (r *Registry) List() []string {
	seen := make(map[string]struct{})
	for reg := r; reg != nil; reg = reg.parent {
		reg.mu.RLock()
		for name := range reg.models {
			seen[name] = struct{}{}
		}
		reg.mu.RUnlock()
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
