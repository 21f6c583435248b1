// Package pipeline binds a pipeline descriptor to an effective
// configuration, a model registry, and an executable stage graph.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/verdictlab/verdict/config"
	"github.com/verdictlab/verdict/dag"
	"github.com/verdictlab/verdict/models"
	"github.com/verdictlab/verdict/runlog"
)

// Column is one pipeline-defined summary column.
type Column struct {
	Header string
	Cell   func(r runlog.Result) string
}

// Summarizer declares the pipeline's extra summary-table columns.
type Summarizer struct {
	Columns []Column
}

// Formatter supplies per-case rendering hooks. Hooks return lines; the
// reporter owns the sink.
type Formatter struct {
	Before func(r runlog.Result) []string
	After  func(r runlog.Result) []string
}

// Mappings names the conventional case fields generic reporting and the
// multi-turn wrapper rely on. Empty fields disable the feature.
type Mappings struct {
	Initial  string
	Expected string
	Observed string
	User     string
	Turns    string
}

// Spec is an immutable pipeline descriptor.
type Spec struct {
	Name          string
	Description   string
	Configuration config.Config

	// CreateDAG returns the per-turn stage graph for the merged config.
	CreateDAG func(name string, cfg config.Config, registry *models.Registry) ([]dag.NodeSpec, error)

	// Expected extracts the expected answer for a case (and turn, when
	// set). Test doubles and failure reports consult it. Optional.
	Expected func(caseData map[string]any, turn *int) any

	// Passed classifies a successful result. Optional; nil means any
	// completed case counts as passed.
	Passed func(r runlog.Result) bool

	Summarizer Summarizer
	Formatter  Formatter
	Mappings   Mappings
}

// PassedBy reports whether a result counts as a pass: it must have
// completed, and the predicate (when present) must accept it.
func (s Spec) PassedBy(r runlog.Result) bool {
	if !r.Succeeded {
		return false
	}
	if s.Passed == nil {
		return true
	}
	return s.Passed(r)
}

// Pipeline is an assembled, runnable pipeline: effective config, model
// registry with test doubles, and a validated DAG.
type Pipeline struct {
	spec     Spec
	cfg      config.Config
	d        *dag.DAG
	registry *models.Registry
}

// New assembles a pipeline. The effective config is merged from the
// spec's defaults, an optional replacement tree, and dotted overrides,
// then validated. A child registry adds the perfect and flakey doubles
// before the spec's stage factory runs.
func New(spec Spec, replacement config.Config, overrides map[string]string, parent *models.Registry) (*Pipeline, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("pipeline name must not be empty")
	}

	cfg, err := config.Merge(spec.Configuration, replacement, overrides)
	if err != nil {
		return nil, fmt.Errorf("Pipeline '%s' merging configuration: %w", spec.Name, err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("Pipeline '%s' validating configuration: %w", spec.Name, err)
	}

	registry := models.NewRegistry()
	if parent != nil {
		registry = parent.Child()
	}
	if spec.Expected != nil {
		if err := registry.Register("perfect", perfectDouble(spec)); err != nil {
			return nil, fmt.Errorf("Pipeline '%s' registering doubles: %w", spec.Name, err)
		}
		if err := registry.Register("flakey", flakeyDouble(spec)); err != nil {
			return nil, fmt.Errorf("Pipeline '%s' registering doubles: %w", spec.Name, err)
		}
	}

	nodes, err := spec.CreateDAG(spec.Name, cfg, registry)
	if err != nil {
		return nil, fmt.Errorf("Pipeline '%s' configuring stages: %w", spec.Name, err)
	}
	d, err := dag.New(nodes)
	if err != nil {
		return nil, fmt.Errorf("Pipeline '%s' configuring stages: %w", spec.Name, err)
	}

	if spec.Mappings.Turns != "" {
		d, err = dag.New([]dag.NodeSpec{{Name: "turns", Run: turnsStage(spec, d)}})
		if err != nil {
			return nil, fmt.Errorf("Pipeline '%s' wrapping turns: %w", spec.Name, err)
		}
	}

	return &Pipeline{spec: spec, cfg: cfg, d: d, registry: registry}, nil
}

// Spec returns the descriptor the pipeline was built from.
func (p *Pipeline) Spec() Spec {
	return p.spec
}

// GetConfig returns a copy of the effective configuration.
func (p *Pipeline) GetConfig() config.Config {
	return config.DeepCopy(p.cfg)
}

// GetDAG returns the executable stage graph.
func (p *Pipeline) GetDAG() *dag.DAG {
	return p.d
}

// Registry returns the pipeline's model registry, including doubles.
func (p *Pipeline) Registry() *models.Registry {
	return p.registry
}

// DiffConfigs lists where the effective config departs from the
// defaults, with internal values hidden.
func (p *Pipeline) DiffConfigs() []config.DiffEntry {
	return config.Diff(p.spec.Configuration, p.cfg)
}

// perfectDouble answers every inference with the expected value.
func perfectDouble(spec Spec) models.Model {
	return models.InferFunc(func(_ context.Context, _ []models.Message, c *dag.Context) (string, error) {
		return renderExpected(spec, c), nil
	})
}

// flakeyDouble answers with the expected value except every third call,
// which returns a deterministic wrong answer.
func flakeyDouble(spec Spec) models.Model {
	var calls atomic.Int64
	return models.InferFunc(func(_ context.Context, _ []models.Message, c *dag.Context) (string, error) {
		if calls.Add(1)%3 == 0 {
			return "INCORRECT", nil
		}
		return renderExpected(spec, c), nil
	})
}

func renderExpected(spec Spec, c *dag.Context) string {
	v := spec.Expected(c.Case, c.Turn)
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// turnsStage wraps a per-turn DAG in a single stage that iterates the
// case's turn list. Each turn runs the inner DAG against its own context;
// the initial field is seeded from the case on the first turn and carried
// from the previous turn's observed output afterwards. When the outer
// context pins a single turn, only that turn runs, seeded from the
// previous turn's expected value.
func turnsStage(spec Spec, inner *dag.DAG) dag.StageFunc {
	m := spec.Mappings
	return func(ctx context.Context, c *dag.Context) (any, error) {
		turns, err := turnList(c.Case, m.Turns)
		if err != nil {
			return nil, err
		}

		if c.Turn != nil {
			return runSingleTurn(ctx, inner, m, turns, *c.Turn, c.Case)
		}

		outputs := make([]map[string]any, 0, len(turns))
		carried := c.Case[m.Initial]
		for i, turn := range turns {
			payload := cloneTurn(turn)
			payload[m.Initial] = carried

			tc := dag.NewContext(payload)
			idx := i
			tc.Turn = &idx
			if err := inner.Execute(ctx, tc); err != nil {
				outputs = append(outputs, tc.Stages())
				break
			}

			stages := tc.Stages()
			outputs = append(outputs, stages)
			observed, ok := stages[m.Observed]
			if !ok {
				break
			}
			carried = observed
		}
		return outputs, nil
	}
}

// runSingleTurn executes one pinned turn in isolation. Turns after the
// first are seeded from the previous turn's expected value so the pinned
// turn does not depend on live model output.
func runSingleTurn(ctx context.Context, inner *dag.DAG, m Mappings, turns []map[string]any, idx int, caseData map[string]any) (any, error) {
	if idx < 0 || idx >= len(turns) {
		return nil, fmt.Errorf("turn index %d out of range (%d turns)", idx, len(turns))
	}

	payload := cloneTurn(turns[idx])
	if idx == 0 {
		payload[m.Initial] = caseData[m.Initial]
	} else {
		payload[m.Initial] = turns[idx-1][m.Expected]
	}

	tc := dag.NewContext(payload)
	tc.Turn = &idx
	if err := inner.Execute(ctx, tc); err != nil {
		return nil, err
	}
	return []map[string]any{tc.Stages()}, nil
}

func turnList(caseData map[string]any, key string) ([]map[string]any, error) {
	raw, ok := caseData[key]
	if !ok {
		return nil, fmt.Errorf("case has no %q field", key)
	}
	switch t := raw.(type) {
	case []map[string]any:
		return t, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for i, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("turn %d is not a mapping", i)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("case field %q is not a turn list", key)
	}
}

func cloneTurn(turn map[string]any) map[string]any {
	out := make(map[string]any, len(turn)+1)
	for k, v := range turn {
		out[k] = v
	}
	return out
}
