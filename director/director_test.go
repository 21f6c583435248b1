package director

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlab/verdict/config"
	"github.com/verdictlab/verdict/dag"
	"github.com/verdictlab/verdict/models"
	"github.com/verdictlab/verdict/pipeline"
	"github.com/verdictlab/verdict/runlog"
)

func caseWithID(i int) map[string]any {
	return map[string]any{"uuid": fmt.Sprintf("00000000-0000-0000-0000-%012d", i)}
}

// linearSpec computes b.y = a.x + 2 through two dependent stages.
func linearSpec() pipeline.Spec {
	return pipeline.Spec{
		Name:          "linear",
		Configuration: config.Config{},
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
						return map[string]any{"y": a.(map[string]any)["x"].(int) + 2}, nil
					},
				},
			}, nil
		},
	}
}

func newDirector(t *testing.T, spec pipeline.Spec, registry *models.Registry, concurrency int, opts ...Option) *Director {
	t.Helper()
	opts = append(opts, WithCommand("verdict run test"))
	d, err := New(spec, nil, nil, registry, concurrency, opts...)
	require.NoError(t, err)
	return d
}

func TestProcessAllCasesLinear(t *testing.T) {
	d := newDirector(t, linearSpec(), nil, 1)

	log, err := d.ProcessAllCases(t.Context(), []map[string]any{
		{"uuid": "00000000-0000-0000-0000-000000000001"},
	})
	require.NoError(t, err)

	require.Len(t, log.Results, 1)
	r := log.Results[0]
	assert.True(t, r.Succeeded)
	assert.Equal(t, 3, r.Stages["b"].(map[string]any)["y"])
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", r.CaseUUID())
	assert.NotEmpty(t, r.Metadata.Start)
	assert.NotEmpty(t, r.Metadata.End)
}

func TestProcessAllCasesPreservesInputOrder(t *testing.T) {
	spec := linearSpec()
	spec.CreateDAG = func(_ string, _ config.Config, _ *models.Registry) ([]dag.NodeSpec, error) {
		return []dag.NodeSpec{{
			Name: "slow",
			Run: func(_ context.Context, c *dag.Context) (any, error) {
				// Later cases finish first.
				id := c.Case["uuid"].(string)
				time.Sleep(time.Duration(id[35]-'0') * 2 * time.Millisecond)
				return id, nil
			},
		}}, nil
	}
	d := newDirector(t, spec, nil, 4)

	var cases []map[string]any
	for i := 8; i >= 1; i-- {
		cases = append(cases, caseWithID(i))
	}
	log, err := d.ProcessAllCases(t.Context(), cases)
	require.NoError(t, err)

	require.Len(t, log.Results, len(cases))
	for i, r := range log.Results {
		assert.Equal(t, cases[i]["uuid"], r.CaseUUID())
	}
}

func TestProcessAllCasesEmptySuite(t *testing.T) {
	d := newDirector(t, linearSpec(), nil, 2)

	log, err := d.ProcessAllCases(t.Context(), nil)
	require.NoError(t, err)

	assert.Empty(t, log.Results)
	assert.NotEmpty(t, log.UUID)
	assert.Equal(t, "verdict run test", log.Metadata.Command)
	assert.Equal(t, "linear", log.Metadata.Pipeline.Name)
	assert.Equal(t, 2, log.Metadata.Concurrency)
	assert.NotEmpty(t, log.Metadata.Start)
	assert.NotEmpty(t, log.Metadata.End)
}

func TestProcessAllCasesValidation(t *testing.T) {
	d := newDirector(t, linearSpec(), nil, 1)

	_, err := d.ProcessAllCases(t.Context(), []map[string]any{{"name": "no id"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = d.ProcessAllCases(t.Context(), []map[string]any{{"uuid": "not-a-uuid"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	dup := caseWithID(1)
	_, err = d.ProcessAllCases(t.Context(), []map[string]any{dup, caseWithID(1)})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "duplicate")
}

// typedModel reports a fixed adapter type in its metadata.
type typedModel struct{ typ string }

func (m typedModel) Infer(context.Context, []models.Message, *dag.Context) (string, error) {
	return "", nil
}

func (m typedModel) Metadata() map[string]any {
	return map[string]any{"type": m.typ}
}

func TestAudioCaseRequiresAudioCapableModel(t *testing.T) {
	registry := models.NewRegistry()
	require.NoError(t, registry.Register("azure", typedModel{typ: "AZURE_OPEN_AI"}))

	spec := linearSpec()
	spec.Configuration = config.Config{"model": "azure"}
	d := newDirector(t, spec, registry, 1)

	audioCase := caseWithID(1)
	audioCase["audio"] = "x.wav"
	_, err := d.ProcessAllCases(t.Context(), []map[string]any{audioCase})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "Audio case requires an audio-capable model")
}

func TestAudioCaseWithCapableModel(t *testing.T) {
	registry := models.NewRegistry()
	require.NoError(t, registry.Register("rt", typedModel{typ: "AZURE_OPEN_AI_REALTIME"}))

	spec := linearSpec()
	spec.Configuration = config.Config{"model": "rt"}
	d := newDirector(t, spec, registry, 1)

	audioCase := caseWithID(1)
	audioCase["audio"] = "x.wav"
	log, err := d.ProcessAllCases(t.Context(), []map[string]any{audioCase})
	require.NoError(t, err)
	assert.Len(t, log.Results, 1)
}

func TestCaseFailureIsIsolated(t *testing.T) {
	spec := linearSpec()
	spec.CreateDAG = func(_ string, _ config.Config, _ *models.Registry) ([]dag.NodeSpec, error) {
		return []dag.NodeSpec{{
			Name: "maybe",
			Run: func(_ context.Context, c *dag.Context) (any, error) {
				if c.Case["fail"] == true {
					return nil, fmt.Errorf("model unavailable")
				}
				return "ok", nil
			},
		}}, nil
	}
	d := newDirector(t, spec, nil, 2)

	bad := caseWithID(1)
	bad["fail"] = true
	log, err := d.ProcessAllCases(t.Context(), []map[string]any{bad, caseWithID(2)})
	require.NoError(t, err)

	require.Len(t, log.Results, 2)
	assert.False(t, log.Results[0].Succeeded)
	require.NotNil(t, log.Results[0].Exception)
	assert.Contains(t, log.Results[0].Exception.Message, "model unavailable")
	assert.NotEmpty(t, log.Results[0].Exception.Time)
	assert.True(t, log.Results[1].Succeeded)
	assert.Nil(t, log.Results[1].Exception)

	assert.Equal(t, 2.0, testutil.ToFloat64(d.metrics.cases))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.failures))
}

func TestStagePanicBecomesException(t *testing.T) {
	spec := linearSpec()
	spec.CreateDAG = func(_ string, _ config.Config, _ *models.Registry) ([]dag.NodeSpec, error) {
		return []dag.NodeSpec{{
			Name: "boom",
			Run: func(context.Context, *dag.Context) (any, error) {
				panic("unexpected payload shape")
			},
		}}, nil
	}
	d := newDirector(t, spec, nil, 1)

	log, err := d.ProcessAllCases(t.Context(), []map[string]any{caseWithID(1)})
	require.NoError(t, err)

	require.Len(t, log.Results, 1)
	assert.False(t, log.Results[0].Succeeded)
	require.NotNil(t, log.Results[0].Exception)
	assert.Contains(t, log.Results[0].Exception.Message, "stage panicked")
	assert.NotEmpty(t, log.Results[0].Exception.Traceback)
}

func TestProgressCallback(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	d := newDirector(t, linearSpec(), nil, 3, WithProgress(func(done, total int, _ runlog.Result) {
		mu.Lock()
		seen = append(seen, done)
		mu.Unlock()
	}))

	cases := []map[string]any{caseWithID(1), caseWithID(2), caseWithID(3)}
	_, err := d.ProcessAllCases(t.Context(), cases)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{1, 2, 3}, seen)
}

func TestCancellationAbandonsRemainingCases(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	spec := linearSpec()
	spec.CreateDAG = func(_ string, _ config.Config, _ *models.Registry) ([]dag.NodeSpec, error) {
		return []dag.NodeSpec{{
			Name: "cancelling",
			Run: func(context.Context, *dag.Context) (any, error) {
				cancel()
				return "done", nil
			},
		}}, nil
	}
	d := newDirector(t, spec, nil, 1)

	log, err := d.ProcessAllCases(ctx, []map[string]any{
		caseWithID(1), caseWithID(2), caseWithID(3),
	})
	require.NoError(t, err)

	// The first case finishes; the abandoned queue produces no records.
	require.Len(t, log.Results, 1)
	assert.True(t, log.Results[0].Succeeded)
	require.NotNil(t, log.Metadata.Exception)
	assert.Contains(t, log.Metadata.Exception.Message, "batch cancelled")
}

func TestExtrasRecordedInResult(t *testing.T) {
	spec := linearSpec()
	spec.CreateDAG = func(_ string, _ config.Config, _ *models.Registry) ([]dag.NodeSpec, error) {
		return []dag.NodeSpec{{
			Name: "writer",
			Run: func(_ context.Context, c *dag.Context) (any, error) {
				c.Set("realtime_events", []string{"session.connected"})
				return "ok", nil
			},
		}}, nil
	}
	d := newDirector(t, spec, nil, 1)

	log, err := d.ProcessAllCases(t.Context(), []map[string]any{caseWithID(1)})
	require.NoError(t, err)
	require.Len(t, log.Results, 1)
	assert.Contains(t, log.Results[0].Extras, "realtime_events")
}

func TestCollectProvenanceOutsideRepository(t *testing.T) {
	sha, edits := collectProvenance(t.TempDir())
	assert.Empty(t, sha)
	assert.Empty(t, edits)
}
