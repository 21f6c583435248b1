package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicate is returned when a pipeline name is registered twice.
var ErrDuplicate = errors.New("duplicate pipeline registration")

// ErrNotFound is returned when no pipeline is registered under a name.
var ErrNotFound = errors.New("pipeline not found")

var (
	registryMu sync.RWMutex
	registry   = map[string]Spec{}
)

// Register binds a pipeline spec under its name, typically from an init
// function in the package that defines the pipeline.
func Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("pipeline name must not be empty")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[spec.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicate, spec.Name)
	}
	registry[spec.Name] = spec
	return nil
}

// Get looks up a registered pipeline spec by name.
func Get(name string) (Spec, error) {
	registryMu.RLock()
	spec, ok := registry[name]
	registryMu.RUnlock()
	if ok {
		return spec, nil
	}
	return Spec{}, fmt.Errorf("%w: %q (known pipelines: %s)", ErrNotFound, name,
		strings.Join(Names(), ", "))
}

// Names returns the registered pipeline names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
