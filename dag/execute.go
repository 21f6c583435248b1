package dag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
)

// ErrDeadlock indicates the executor ran out of runnable stages while some
// were still waiting on inputs. It cannot occur for a DAG built by New.
var ErrDeadlock = errors.New("dag execution deadlocked")

var tracer = otel.Tracer("verdict/dag")

type stageResult struct {
	node  *node
	value any
	err   error
}

// Execute runs every stage of the DAG against the given context. A stage
// is started once all of its inputs have recorded outputs; sibling stages
// run concurrently. When a stage fails, in-flight siblings are allowed to
// finish, no new stages start, and the first observed failure is returned.
// Cancelling ctx is handled the same way: in-flight stages quiesce,
// nothing new starts, and the context error is returned. A graph whose
// stages all finished before the cancellation was observed still succeeds.
func (d *DAG) Execute(ctx context.Context, c *Context) error {
	waiting := make(map[*node]map[string]struct{}, len(d.nodes))
	var ready []*node
	for _, n := range d.nodes {
		if len(n.inputs) == 0 {
			ready = append(ready, n)
			continue
		}
		deps := make(map[string]struct{}, len(n.inputs))
		for _, input := range n.inputs {
			deps[input] = struct{}{}
		}
		waiting[n] = deps
	}

	results := make(chan stageResult)
	running := 0
	completed := 0
	var firstErr error

	start := func(n *node) {
		running++
		go func() {
			spanCtx, span := tracer.Start(ctx, "stage."+n.name)
			defer span.End()
			value, err := n.run(spanCtx, c)
			if err != nil {
				err = fmt.Errorf("stage %q: %w", n.name, err)
			}
			results <- stageResult{node: n, value: value, err: err}
		}()
	}

	for {
		if firstErr == nil && len(ready) > 0 && ctx.Err() != nil {
			firstErr = fmt.Errorf("execution cancelled: %w", ctx.Err())
		}
		if firstErr == nil {
			for _, n := range ready {
				start(n)
			}
			ready = ready[:0]
		}
		if running == 0 {
			break
		}

		res := <-results
		running--
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}

		completed++
		if err := c.setStage(res.node.name, res.value); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, out := range res.node.outputs {
			deps := waiting[out]
			delete(deps, res.node.name)
			if len(deps) == 0 {
				delete(waiting, out)
				ready = append(ready, out)
			}
		}
	}

	if firstErr != nil {
		return firstErr
	}
	if completed != len(d.nodes) {
		var stuck []string
		for n := range waiting {
			stuck = append(stuck, n.name)
		}
		sort.Strings(stuck)
		return fmt.Errorf("%w: stages still waiting: %s", ErrDeadlock, strings.Join(stuck, ", "))
	}
	return nil
}
