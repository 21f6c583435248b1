// Package dag builds and executes directed acyclic graphs of asynchronous
// stages. A DAG is validated once at build time; execution then schedules
// every stage as soon as all of its inputs have completed.
package dag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidSpec is returned when a stage graph fails build validation.
var ErrInvalidSpec = errors.New("invalid dag spec")

// StageFunc is one asynchronous computation node. It may suspend on I/O
// and must either return a value or an error.
type StageFunc func(ctx context.Context, c *Context) (any, error)

// NodeSpec declares one stage: a unique name, the names of the stages it
// consumes, and the function to run.
type NodeSpec struct {
	Name   string
	Inputs []string
	Run    StageFunc
}

type node struct {
	name    string
	inputs  []string
	run     StageFunc
	outputs []*node
}

// DAG is a validated, executable stage graph. It is immutable after New
// and safe to execute concurrently against distinct contexts.
type DAG struct {
	nodes  []*node
	byName map[string]*node
}

// New validates the node specs and builds an executable DAG. Validation
// rejects empty specs, duplicate names, duplicate or unknown inputs,
// graphs with no source node, cycles, and unreachable nodes.
func New(specs []NodeSpec) (*DAG, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no stages defined", ErrInvalidSpec)
	}

	byName := make(map[string]*node, len(specs))
	nodes := make([]*node, 0, len(specs))
	for _, spec := range specs {
		if _, exists := byName[spec.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate stage name %q", ErrInvalidSpec, spec.Name)
		}
		n := &node{name: spec.Name, inputs: spec.Inputs, run: spec.Run}
		byName[spec.Name] = n
		nodes = append(nodes, n)
	}

	hasSource := false
	for _, n := range nodes {
		seen := make(map[string]struct{}, len(n.inputs))
		for _, input := range n.inputs {
			if _, dup := seen[input]; dup {
				return nil, fmt.Errorf("%w: stage %q lists input %q twice", ErrInvalidSpec, n.name, input)
			}
			seen[input] = struct{}{}
			src, known := byName[input]
			if !known {
				return nil, fmt.Errorf("%w: stage %q references unknown input %q", ErrInvalidSpec, n.name, input)
			}
			src.outputs = append(src.outputs, n)
		}
		if len(n.inputs) == 0 {
			hasSource = true
		}
	}
	if !hasSource {
		return nil, fmt.Errorf("%w: no source stage (every stage has inputs)", ErrInvalidSpec)
	}

	d := &DAG{nodes: nodes, byName: byName}
	if err := d.checkAcyclicAndReachable(); err != nil {
		return nil, err
	}
	return d, nil
}

// Names returns the stage names in declaration order.
func (d *DAG) Names() []string {
	names := make([]string, len(d.nodes))
	for i, n := range d.nodes {
		names[i] = n.name
	}
	return names
}

// checkAcyclicAndReachable runs a depth-first search from every source
// node. A node found on the current DFS stack means a cycle; a node left
// unvisited after the traversal is unreachable.
func (d *DAG) checkAcyclicAndReachable() error {
	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(d.nodes))

	var path []string
	var visit func(n *node) error
	visit = func(n *node) error {
		switch state[n.name] {
		case onStack:
			cycle := append(append([]string(nil), path...), n.name)
			return fmt.Errorf("%w: Cycle detected: %s", ErrInvalidSpec, strings.Join(cycle, " -> "))
		case done:
			return nil
		}
		state[n.name] = onStack
		path = append(path, n.name)
		for _, out := range n.outputs {
			if err := visit(out); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[n.name] = done
		return nil
	}

	for _, n := range d.nodes {
		if len(n.inputs) == 0 {
			if err := visit(n); err != nil {
				return err
			}
		}
	}

	var unreached []string
	for _, n := range d.nodes {
		if state[n.name] == unvisited {
			unreached = append(unreached, n.name)
		}
	}
	if len(unreached) > 0 {
		sort.Strings(unreached)
		return fmt.Errorf("%w: unreachable stages: %s", ErrInvalidSpec, strings.Join(unreached, ", "))
	}
	return nil
}
