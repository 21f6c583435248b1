// Package director orchestrates one run: it assembles the pipeline,
// validates the case suite, fans cases out to a bounded worker pool, and
// composes the immutable run log.
package director

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/verdictlab/verdict/config"
	"github.com/verdictlab/verdict/dag"
	"github.com/verdictlab/verdict/logger"
	"github.com/verdictlab/verdict/models"
	"github.com/verdictlab/verdict/pipeline"
	"github.com/verdictlab/verdict/runlog"
)

// ErrInvalidInput is returned when the case suite fails validation:
// missing or malformed uuids, duplicates, or audio cases paired with a
// model that cannot consume audio.
var ErrInvalidInput = errors.New("invalid case input")

const timeLayout = "2006-01-02T15:04:05.000000Z"

var tracer = otel.Tracer("verdict/director")

// ProgressFunc is invoked once per completed case, serialized.
type ProgressFunc func(done, total int, r runlog.Result)

// Option adjusts director construction.
type Option func(*Director)

// WithProgress installs a per-case completion callback.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Director) { d.progress = fn }
}

// WithCommand overrides the recorded invocation command. The default is
// the process argument list.
func WithCommand(command string) Option {
	return func(d *Director) { d.command = command }
}

// Director runs a case suite through one assembled pipeline.
type Director struct {
	pipe        *pipeline.Pipeline
	concurrency int
	command     string
	sha         string
	edits       []string
	progress    ProgressFunc
	metrics     *runMetrics
	promReg     *prometheus.Registry
}

// New assembles the pipeline and captures run provenance. The
// concurrency bound is clamped to at least 1.
func New(spec pipeline.Spec, replacement config.Config, overrides map[string]string, registry *models.Registry, maxConcurrency int, opts ...Option) (*Director, error) {
	pipe, err := pipeline.New(spec, replacement, overrides, registry)
	if err != nil {
		return nil, err
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	promReg := prometheus.NewRegistry()
	d := &Director{
		pipe:        pipe,
		concurrency: maxConcurrency,
		command:     strings.Join(os.Args, " "),
		metrics:     newRunMetrics(promReg),
		promReg:     promReg,
	}
	d.sha, d.edits = collectProvenance(".")
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Pipeline returns the assembled pipeline.
func (d *Director) Pipeline() *pipeline.Pipeline {
	return d.pipe
}

// Gatherer exposes the director's run metrics for the host to scrape.
func (d *Director) Gatherer() prometheus.Gatherer {
	return d.promReg
}

// ProcessAllCases validates the suite, runs every case under the
// concurrency bound, and returns the run log with results in case input
// order. Cancellation lets in-flight cases finish and abandons the rest;
// abandoned cases produce no result record.
func (d *Director) ProcessAllCases(ctx context.Context, cases []map[string]any) (*runlog.RunLog, error) {
	if err := d.validateCases(cases); err != nil {
		return nil, err
	}

	start := time.Now()
	spec := d.pipe.Spec()
	log := &runlog.RunLog{
		UUID: uuid.NewString(),
		Metadata: runlog.Metadata{
			Command:     d.command,
			Start:       start.UTC().Format(timeLayout),
			Concurrency: d.concurrency,
			Pipeline:    runlog.PipelineMeta{Name: spec.Name, Config: d.pipe.GetConfig()},
			SHA:         d.sha,
			Edits:       d.edits,
		},
	}
	logger.Info("run started", "pipeline", spec.Name, "cases", len(cases), "concurrency", d.concurrency)

	slots := make([]*runlog.Result, len(cases))
	sem := semaphore.NewWeighted(int64(d.concurrency))
	var wg sync.WaitGroup
	var done atomic.Int64
	var progressMu sync.Mutex
	var batchErr error

	for i, caseData := range cases {
		if err := sem.Acquire(ctx, 1); err != nil {
			batchErr = fmt.Errorf("batch cancelled: %w", err)
			break
		}
		wg.Add(1)
		go func(i int, caseData map[string]any) {
			defer wg.Done()
			defer sem.Release(1)

			r := d.runCase(ctx, caseData)
			slots[i] = &r

			n := int(done.Add(1))
			if d.progress != nil {
				progressMu.Lock()
				d.progress(n, len(cases), r)
				progressMu.Unlock()
			}
		}(i, caseData)
	}
	wg.Wait()

	for _, r := range slots {
		if r != nil {
			log.Results = append(log.Results, *r)
		}
	}
	if batchErr != nil {
		log.Metadata.Exception = &runlog.Exception{
			Message: batchErr.Error(),
			Time:    time.Now().UTC().Format(timeLayout),
		}
		logger.Warn("run aborted", "pipeline", spec.Name, "error", batchErr)
	}

	end := time.Now()
	log.Metadata.End = end.UTC().Format(timeLayout)
	log.Metadata.Elapsed = end.Sub(start).Seconds()
	logger.Info("run finished", "pipeline", spec.Name, "results", len(log.Results),
		"elapsed_s", log.Metadata.Elapsed)
	return log, nil
}

// runCase executes one case in isolation and assembles its result. A
// stage error or panic fails only this case.
func (d *Director) runCase(ctx context.Context, caseData map[string]any) runlog.Result {
	caseCtx, span := tracer.Start(ctx, "case",
		trace.WithAttributes(attribute.String("case.uuid", caseUUID(caseData))))
	defer span.End()

	start := time.Now()
	result := runlog.Result{
		Case:     caseData,
		Metadata: runlog.Timing{Start: start.UTC().Format(timeLayout)},
	}

	c := dag.NewContext(caseData)
	err := d.executeCase(caseCtx, c)

	end := time.Now()
	result.Metadata.End = end.UTC().Format(timeLayout)
	result.Metadata.Elapsed = end.Sub(start).Seconds()
	result.Stages = c.Stages()
	if extras := c.Extras(); len(extras) > 0 {
		result.Extras = extras
	}

	d.metrics.cases.Inc()
	d.metrics.duration.Observe(result.Metadata.Elapsed)
	if err != nil {
		result.Succeeded = false
		result.Exception = &runlog.Exception{
			Message:   err.Error(),
			Traceback: fmt.Sprintf("%+v", err),
			Time:      end.UTC().Format(timeLayout),
		}
		d.metrics.failures.Inc()
		logger.Debug("case failed", "uuid", caseUUID(caseData), "error", err)
		return result
	}
	result.Succeeded = true
	return result
}

// executeCase runs the DAG with panic containment so a misbehaving stage
// cannot take down the batch.
func (d *Director) executeCase(ctx context.Context, c *dag.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stage panicked: %v\n%s", p, debug.Stack())
		}
	}()
	return d.pipe.GetDAG().Execute(ctx, c)
}

// validateCases checks the suite before any scheduling: every case needs
// a unique canonical uuid, and audio cases need an audio-capable model.
func (d *Director) validateCases(cases []map[string]any) error {
	seen := make(map[string]struct{}, len(cases))
	hasAudio := false
	for i, caseData := range cases {
		id := caseUUID(caseData)
		if id == "" {
			return fmt.Errorf("%w: case %d has no uuid", ErrInvalidInput, i)
		}
		if len(id) != 36 {
			return fmt.Errorf("%w: case %d uuid %q is not in canonical form", ErrInvalidInput, i, id)
		}
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: case %d uuid %q: %v", ErrInvalidInput, i, id, err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate case uuid %q", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
		if _, ok := caseData["audio"]; ok {
			hasAudio = true
		}
	}
	if hasAudio {
		return d.checkAudioCapable()
	}
	return nil
}

// checkAudioCapable verifies the configured inference model can consume
// audio cases.
func (d *Director) checkAudioCapable() error {
	name, _ := d.pipe.GetConfig()["model"].(string)
	if name == "" {
		return fmt.Errorf("%w: Audio case requires an audio-capable model (no model configured)", ErrInvalidInput)
	}
	model, err := d.pipe.Registry().Lookup(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	typ, _ := model.Metadata()["type"].(string)
	if !models.AudioCapableTypes[typ] {
		return fmt.Errorf("%w: Audio case requires an audio-capable model (model %q has type %q)",
			ErrInvalidInput, name, typ)
	}
	return nil
}

func caseUUID(caseData map[string]any) string {
	id, _ := caseData["uuid"].(string)
	return id
}
