package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlab/verdict/config"
	"github.com/verdictlab/verdict/dag"
	"github.com/verdictlab/verdict/models"
	"github.com/verdictlab/verdict/runlog"
)

// linearSpec is a two-stage pipeline: a produces x, b adds 2 to it.
func linearSpec() Spec {
	return Spec{
		Name:          "linear",
		Configuration: config.Config{"model": "perfect"},
		Expected: func(caseData map[string]any, _ *int) any {
			return caseData["expected"]
		},
		CreateDAG: func(_ string, _ config.Config, _ *models.Registry) ([]dag.NodeSpec, error) {
			return []dag.NodeSpec{
				{
					Name: "a",
					Run: func(context.Context, *dag.Context) (any, error) {
						return map[string]any{"x": 1}, nil
					},
				},
				{
					Name:   "b",
					Inputs: []string{"a"},
					Run: func(_ context.Context, c *dag.Context) (any, error) {
						a, _ := c.Stage("a")
						x := a.(map[string]any)["x"].(int)
						return map[string]any{"y": x + 2}, nil
					},
				},
			}, nil
		},
	}
}

func TestNewBuildsExecutableDAG(t *testing.T) {
	p, err := New(linearSpec(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.GetDAG().Names())

	c := dag.NewContext(map[string]any{"uuid": "00000000-0000-0000-0000-000000000001"})
	require.NoError(t, p.GetDAG().Execute(t.Context(), c))
	b, ok := c.Stage("b")
	require.True(t, ok)
	assert.Equal(t, 3, b.(map[string]any)["y"])
}

func TestNewRejectsUnresolvedRequired(t *testing.T) {
	spec := linearSpec()
	spec.Configuration = config.Config{
		"prompt": config.Required{Description: "the system prompt"},
	}
	_, err := New(spec, nil, nil, nil)
	require.ErrorIs(t, err, config.ErrMissingRequired)
	assert.Contains(t, err.Error(), "the system prompt")
}

func TestNewResolvesRequiredViaOverride(t *testing.T) {
	spec := linearSpec()
	spec.Configuration = config.Config{
		"prompt": config.Required{Description: "the system prompt"},
	}
	p, err := New(spec, nil, map[string]string{"prompt": "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", p.GetConfig()["prompt"])
}

func TestNewSurfacesStageFactoryError(t *testing.T) {
	spec := linearSpec()
	spec.CreateDAG = func(string, config.Config, *models.Registry) ([]dag.NodeSpec, error) {
		return nil, fmt.Errorf("boom")
	}
	_, err := New(spec, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pipeline 'linear' configuring stages")
}

func TestDoublesRegistered(t *testing.T) {
	parent := models.NewRegistry()
	p, err := New(linearSpec(), nil, nil, parent)
	require.NoError(t, err)

	caseData := map[string]any{"expected": "42"}

	perfect, err := p.Registry().Lookup("perfect")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		out, err := perfect.Infer(t.Context(), nil, dag.NewContext(caseData))
		require.NoError(t, err)
		assert.Equal(t, "42", out)
	}

	flakey, err := p.Registry().Lookup("flakey")
	require.NoError(t, err)
	var outs []string
	for i := 0; i < 3; i++ {
		out, err := flakey.Infer(t.Context(), nil, dag.NewContext(caseData))
		require.NoError(t, err)
		outs = append(outs, out)
	}
	assert.Equal(t, []string{"42", "42", "INCORRECT"}, outs)
}

func TestDoublesNotRegisteredWithoutExpected(t *testing.T) {
	spec := linearSpec()
	spec.Expected = nil
	p, err := New(spec, nil, nil, nil)
	require.NoError(t, err)
	_, err = p.Registry().Lookup("perfect")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDiffConfigs(t *testing.T) {
	spec := linearSpec()
	spec.Configuration = config.Config{"model": "perfect", "limit": 10}
	p, err := New(spec, nil, map[string]string{"limit": "20"}, nil)
	require.NoError(t, err)

	diff := p.DiffConfigs()
	require.Len(t, diff, 1)
	assert.Equal(t, "limit", diff[0].Path)
	assert.Equal(t, 10, diff[0].Old)
	assert.Equal(t, 20, diff[0].New)
}

// echoSpec responds to each turn with a string derived from the carried
// initial value, exercising the multi-turn wrapper.
func echoSpec() Spec {
	return Spec{
		Name:          "echo",
		Configuration: config.Config{},
		Mappings: Mappings{
			Initial:  "initial",
			Expected: "expected",
			Observed: "respond",
			Turns:    "turns",
		},
		CreateDAG: func(_ string, _ config.Config, _ *models.Registry) ([]dag.NodeSpec, error) {
			return []dag.NodeSpec{{
				Name: "respond",
				Run: func(_ context.Context, c *dag.Context) (any, error) {
					return fmt.Sprintf("reply(%v)", c.Case["initial"]), nil
				},
			}}, nil
		},
	}
}

func TestTurnsWrapperIteratesAndCarriesObserved(t *testing.T) {
	p, err := New(echoSpec(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"turns"}, p.GetDAG().Names())

	c := dag.NewContext(map[string]any{
		"uuid":    "00000000-0000-0000-0000-000000000001",
		"initial": "start",
		"turns": []any{
			map[string]any{"expected": "e0"},
			map[string]any{"expected": "e1"},
		},
	})
	require.NoError(t, p.GetDAG().Execute(t.Context(), c))

	v, ok := c.Stage("turns")
	require.True(t, ok)
	outputs := v.([]map[string]any)
	require.Len(t, outputs, 2)
	assert.Equal(t, "reply(start)", outputs[0]["respond"])
	// The second turn sees the first turn's observed output.
	assert.Equal(t, "reply(reply(start))", outputs[1]["respond"])
}

func TestTurnsWrapperSingleTurnSeedsFromExpected(t *testing.T) {
	p, err := New(echoSpec(), nil, nil, nil)
	require.NoError(t, err)

	c := dag.NewContext(map[string]any{
		"uuid":    "00000000-0000-0000-0000-000000000001",
		"initial": "start",
		"turns": []any{
			map[string]any{"expected": "e0"},
			map[string]any{"expected": "e1"},
		},
	})
	turn := 1
	c.Turn = &turn
	require.NoError(t, p.GetDAG().Execute(t.Context(), c))

	v, _ := c.Stage("turns")
	outputs := v.([]map[string]any)
	require.Len(t, outputs, 1)
	// Seeded from turn 0's expected value, not its observed output.
	assert.Equal(t, "reply(e0)", outputs[0]["respond"])
}

func TestTurnsWrapperBreaksOnFailedTurn(t *testing.T) {
	spec := echoSpec()
	spec.CreateDAG = func(_ string, _ config.Config, _ *models.Registry) ([]dag.NodeSpec, error) {
		return []dag.NodeSpec{{
			Name: "respond",
			Run: func(_ context.Context, c *dag.Context) (any, error) {
				if c.Case["fail"] == true {
					return nil, fmt.Errorf("model unavailable")
				}
				return "ok", nil
			},
		}}, nil
	}
	p, err := New(spec, nil, nil, nil)
	require.NoError(t, err)

	c := dag.NewContext(map[string]any{
		"initial": "start",
		"turns": []any{
			map[string]any{"fail": true},
			map[string]any{},
		},
	})
	require.NoError(t, p.GetDAG().Execute(t.Context(), c))

	v, _ := c.Stage("turns")
	outputs := v.([]map[string]any)
	// The failed first turn stops the iteration.
	require.Len(t, outputs, 1)
	_, recorded := outputs[0]["respond"]
	assert.False(t, recorded)
}

func TestTurnsWrapperMissingTurnList(t *testing.T) {
	p, err := New(echoSpec(), nil, nil, nil)
	require.NoError(t, err)

	c := dag.NewContext(map[string]any{"initial": "start"})
	err = p.GetDAG().Execute(t.Context(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"turns"`)
}

func TestPassedBy(t *testing.T) {
	spec := linearSpec()
	ok := runlog.Result{Succeeded: true}
	failed := runlog.Result{Succeeded: false}

	assert.True(t, spec.PassedBy(ok))
	assert.False(t, spec.PassedBy(failed))

	spec.Passed = func(r runlog.Result) bool { return false }
	assert.False(t, spec.PassedBy(ok))
}

func TestPackageRegistry(t *testing.T) {
	spec := linearSpec()
	spec.Name = "registry-test-pipeline"
	require.NoError(t, Register(spec))
	assert.ErrorIs(t, Register(spec), ErrDuplicate)

	got, err := Get("registry-test-pipeline")
	require.NoError(t, err)
	assert.Equal(t, "registry-test-pipeline", got.Name)

	_, err = Get("no-such-pipeline")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "registry-test-pipeline")

	assert.Contains(t, Names(), "registry-test-pipeline")
}
