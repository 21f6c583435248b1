package dag

import (
	"fmt"
	"sync"
)

// Context is the per-case state threaded through one DAG execution. The
// case payload is read-only; stage outputs and adapter-written extras are
// guarded by a mutex because sibling stages run concurrently.
type Context struct {
	// Case is the immutable input record. The engine never mutates it.
	Case map[string]any

	// Turn, when set, restricts a multi-turn pipeline to a single turn.
	Turn *int

	mu     sync.Mutex
	stages map[string]any
	extra  map[string]any
}

// NewContext creates a fresh execution context for one case.
func NewContext(c map[string]any) *Context {
	return &Context{
		Case:   c,
		stages: make(map[string]any),
		extra:  make(map[string]any),
	}
}

// Stage returns the recorded output of a completed stage.
func (c *Context) Stage(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.stages[name]
	return v, ok
}

// Stages returns a snapshot of all recorded stage outputs.
func (c *Context) Stages() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.stages))
	for k, v := range c.stages {
		out[k] = v
	}
	return out
}

// setStage records a stage output. Each stage name is written exactly once
// per execution; a second write indicates an engine bug.
func (c *Context) setStage(name string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.stages[name]; exists {
		return fmt.Errorf("stage %q written twice", name)
	}
	c.stages[name] = value
	return nil
}

// Set stores an auxiliary value on the context, such as the realtime
// adapter's event log.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extra[key] = value
}

// Get returns an auxiliary value previously stored with Set.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.extra[key]
	return v, ok
}

// Extras returns a snapshot of all auxiliary values.
func (c *Context) Extras() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.extra))
	for k, v := range c.extra {
		out[k] = v
	}
	return out
}
