/*
PURPOSE:
  Experiment orchestrator. Loops tasks -> models, rewrites each task's
  texts with each model, scores the rewrites with every metric and the
  task's own evaluator, and collects one Record per pair into a Report.

REQUIREMENTS:
  User-specified:
  - Exactly one Record per (task, model) pair, failed or not.
  - Task order then model order is preserved in the Report.
  - A failing pair never aborts the run.

  Implementation-discovered:
  - Batch-capable models get chunks of at most BatchSize texts.
  - Panics in models, metrics and evaluators are recovered where they happen.
  - Metric outputs and task evaluation outputs share one key space; collisions
    are configuration errors, never overwrites.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/anonymizer, internal/metric, internal/task, internal/report

ERROR HANDLING:
  - Logs errors but continues (resilience).
  - Only ConfigError (found before the first pair) is returned to the caller.

IMPLEMENTATION RULES:
  - Sequential by default: models usually share one accelerator.
  - With ParallelModels > 1, models of one task run concurrently; each goroutine
    owns one pre-allocated slot, and slots are inserted in model order.

USAGE:
  exp, err := engine.New(tasks, models, metrics, engine.Options{BatchSize: 16})
  rep, err := exp.Run(ctx)

RELATED FILES:
  - internal/engine/validate.go
  - internal/report/types.go

MAINTENANCE:
  - Update validate.go when adding new key sources to a Record.
*/

package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/daryltucker/tau-eval/internal/anonymizer"
	"github.com/daryltucker/tau-eval/internal/metric"
	"github.com/daryltucker/tau-eval/internal/output"
	"github.com/daryltucker/tau-eval/internal/report"
	"github.com/daryltucker/tau-eval/internal/task"
)

// EvaluateKey holds the error marker when a task's own evaluation fails.
const EvaluateKey = "evaluate"

var tracer = otel.Tracer("github.com/daryltucker/tau-eval/internal/engine")

// State is the lifecycle of an Experiment.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Options tunes a run. The zero value runs sequentially with unbounded batches.
type Options struct {
	// BatchSize caps texts per batch call; 0 sends a task's whole dataset at once.
	BatchSize int
	// ParallelModels > 1 evaluates that many models of a task concurrently.
	ParallelModels int
	Observer       Observer
}

// Experiment evaluates every model on every task.
type Experiment struct {
	tasks   []task.Task
	models  []anonymizer.Anonymizer
	metrics []metric.Metric
	opts    Options

	mu    sync.Mutex
	state State
}

// New validates the run inputs. Any problem is returned as a *ConfigError and
// no work is started.
func New(tasks []task.Task, models []anonymizer.Anonymizer, metrics []metric.Metric, opts Options) (*Experiment, error) {
	if err := validate(tasks, models, metrics, opts); err != nil {
		return nil, &ConfigError{Err: err}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Experiment{
		tasks:   tasks,
		models:  models,
		metrics: metrics,
		opts:    opts,
	}, nil
}

// State returns the current lifecycle state.
func (e *Experiment) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run executes the full evaluation and returns a fresh Report. Pair failures are
// recorded inside the Report; the returned error is non-nil only if the
// experiment is already running.
func (e *Experiment) Run(ctx context.Context) (*report.Report, error) {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return nil, ErrRunning
	}
	e.state = StateRunning
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.state = StateCompleted
		e.mu.Unlock()
	}()

	ctx, span := tracer.Start(ctx, "experiment.run", trace.WithAttributes(
		attribute.Int("tasks", len(e.tasks)),
		attribute.Int("models", len(e.models)),
		attribute.Int("metrics", len(e.metrics)),
	))
	defer span.End()

	rep := report.New()
	for i, t := range e.tasks {
		key := report.TaskKey(t.Name(), i)
		output.Logger.Info("Running task", "task", key, "models", len(e.models))

		texts, dataErr := e.loadTexts(ctx, t)
		if dataErr != nil {
			output.Logger.Error("Dataset unavailable", "task", key, "error", dataErr)
		}

		records := make([]*report.Record, len(e.models))
		if e.opts.ParallelModels > 1 && len(e.models) > 1 {
			var g errgroup.Group
			g.SetLimit(e.opts.ParallelModels)
			for j := range e.models {
				g.Go(func() error {
					records[j] = e.runPair(ctx, key, t, texts, dataErr, e.models[j])
					return nil
				})
			}
			_ = g.Wait()
		} else {
			for j := range e.models {
				records[j] = e.runPair(ctx, key, t, texts, dataErr, e.models[j])
			}
		}

		for j, m := range e.models {
			if err := rep.Put(key, m.Name(), records[j]); err != nil {
				// validate() rules this out; keep going rather than lose the run.
				output.Logger.Error("Failed to record result", "task", key, "model", m.Name(), "error", err)
			}
		}
	}

	failedPairs, failedEntries := rep.Failures()
	span.SetAttributes(attribute.Int("failed_pairs", failedPairs), attribute.Int("failed_entries", failedEntries))
	output.Logger.Info("Run complete", "pairs", rep.Pairs(), "failed_pairs", failedPairs, "failed_entries", failedEntries)
	return rep, nil
}

// Run is a convenience wrapper around New and Experiment.Run.
func Run(ctx context.Context, tasks []task.Task, models []anonymizer.Anonymizer, metrics []metric.Metric, opts Options) (*report.Report, error) {
	exp, err := New(tasks, models, metrics, opts)
	if err != nil {
		return nil, err
	}
	return exp.Run(ctx)
}

// Persister stores a finished Report.
type Persister interface {
	Persist(ctx context.Context, rep *report.Report) error
}

// RunAndPersist runs the experiment and hands the Report to each persister in order.
func (e *Experiment) RunAndPersist(ctx context.Context, persisters ...Persister) (*report.Report, error) {
	rep, err := e.Run(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range persisters {
		if err := p.Persist(ctx, rep); err != nil {
			return rep, fmt.Errorf("failed to persist report: %w", err)
		}
	}
	return rep, nil
}

func (e *Experiment) loadTexts(ctx context.Context, t task.Task) (texts []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	texts, err = t.Texts(ctx)
	if err == nil && len(texts) == 0 {
		err = task.ErrEmptyDataset
	}
	return texts, err
}

// runPair produces the Record for one (task, model) pair. It never panics and
// never returns nil.
func (e *Experiment) runPair(ctx context.Context, key string, t task.Task, texts []string, dataErr error, m anonymizer.Anonymizer) *report.Record {
	name := m.Name()
	start := time.Now()
	e.opts.Observer.PairStarted(key, name)

	ctx, span := tracer.Start(ctx, "experiment.pair", trace.WithAttributes(
		attribute.String("task", key),
		attribute.String("model", name),
		attribute.Int("texts", len(texts)),
	))
	defer span.End()

	rec := e.evaluatePair(ctx, key, t, texts, dataErr, m)
	if rec.Failed() {
		span.SetStatus(codes.Error, rec.Err.Message)
		output.Logger.Error("Pair failed", "task", key, "model", name, "kind", rec.Err.Kind, "error", rec.Err.Message)
	} else {
		output.Logger.Info("Pair complete", "task", key, "model", name, "entries", rec.Len(), "duration", time.Since(start))
	}

	e.opts.Observer.PairFinished(report.PairResult{TaskKey: key, Model: name, Duration: time.Since(start), Record: rec})
	return rec
}

func (e *Experiment) evaluatePair(ctx context.Context, key string, t task.Task, texts []string, dataErr error, m anonymizer.Anonymizer) *report.Record {
	if dataErr != nil {
		return report.FailedRecord(report.NewMarker(report.KindDataset, dataErr))
	}

	rewrites, err := rewrite(ctx, m, texts, e.opts.BatchSize)
	if err != nil {
		return report.FailedRecord(report.NewMarker(report.KindPairExecution, err))
	}

	rec := report.NewRecord()
	for _, mt := range e.metrics {
		e.applyMetric(ctx, key, m.Name(), rec, mt, texts, rewrites)
	}
	if ev := t.Evaluator(); ev != nil {
		e.applyEvaluator(ctx, key, m.Name(), rec, ev, rewrites)
	}
	return rec
}

// rewrite runs the model over texts, preferring the batch path.
func rewrite(ctx context.Context, m anonymizer.Anonymizer, texts []string, batchSize int) (out []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, panicError(r)
		}
	}()

	if b, ok := m.(anonymizer.BatchAnonymizer); ok {
		size := batchSize
		if size <= 0 || size > len(texts) {
			size = len(texts)
		}
		out = make([]string, 0, len(texts))
		for lo := 0; lo < len(texts); lo += size {
			hi := min(lo+size, len(texts))
			chunk := texts[lo:hi]
			res, err := b.AnonymizeBatch(ctx, chunk)
			if err != nil {
				return nil, fmt.Errorf("batch [%d:%d]: %w", lo, hi, err)
			}
			if err := anonymizer.CheckBatch(chunk, res); err != nil {
				return nil, fmt.Errorf("batch [%d:%d]: %w", lo, hi, err)
			}
			out = append(out, res...)
		}
		return out, nil
	}

	out = make([]string, len(texts))
	for i, text := range texts {
		if out[i], err = m.Anonymize(ctx, text); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	return out, nil
}

func computeMetric(ctx context.Context, mt metric.Metric, originals, rewrites []string) (s metric.Scores, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, panicError(r)
		}
	}()
	return mt.Compute(ctx, originals, rewrites)
}

func (e *Experiment) applyMetric(ctx context.Context, key, model string, rec *report.Record, mt metric.Metric, texts, rewrites []string) {
	fail := func(err error) {
		output.Logger.Error("Metric failed", "task", key, "model", model, "metric", mt.ID(), "error", err)
		recordError(rec, mt.ID(), report.NewMarker(report.KindMetricComputation, err))
	}

	scores, err := computeMetric(ctx, mt, texts, rewrites)
	if err != nil {
		fail(err)
		return
	}

	keys := metric.OrderedKeys(scores, mt.Keys())
	for _, k := range keys {
		if len(scores[k]) != len(texts) {
			fail(fmt.Errorf("%s returned %d scores for %d texts", k, len(scores[k]), len(texts)))
			return
		}
	}
	for _, k := range keys {
		if rec.Has(k) {
			collision(rec, mt.ID()+"."+k, fmt.Errorf("%w: metric %s output %q is already set", ErrKeyCollision, mt.ID(), k))
			continue
		}
		_ = rec.SetScores(k, scores[k])
	}
}

func evaluate(ctx context.Context, ev task.Evaluator, rewrites []string) (res map[string]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, panicError(r)
		}
	}()
	return ev.Evaluate(ctx, rewrites)
}

func (e *Experiment) applyEvaluator(ctx context.Context, key, model string, rec *report.Record, ev task.Evaluator, rewrites []string) {
	res, err := evaluate(ctx, ev, rewrites)
	if err != nil {
		output.Logger.Error("Task evaluation failed", "task", key, "model", model, "error", err)
		recordError(rec, EvaluateKey, report.NewMarker(report.KindMetricComputation, err))
		return
	}

	declared := make(map[string]bool, len(ev.Keys()))
	var keys []string
	for _, k := range ev.Keys() {
		if _, ok := res[k]; ok && !declared[k] {
			keys = append(keys, k)
		}
		declared[k] = true
	}
	var extra []string
	for k := range res {
		if !declared[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	for _, k := range keys {
		if rec.Has(k) {
			collision(rec, "task."+k, fmt.Errorf("%w: task evaluation output %q is already set by a metric", ErrKeyCollision, k))
			continue
		}
		_ = rec.SetScalar(k, res[k])
	}
}

// collision records a key clash found at merge time. The value already in the
// record is kept.
func collision(rec *report.Record, markerKey string, err error) {
	output.Logger.Error("Result key collision", "key", markerKey, "error", err)
	recordError(rec, markerKey, report.NewMarker(report.KindConfiguration, err))
}

// recordError stores m under name. When name is taken, m goes under
// name#error, then name#error2, ... so a marker is never lost.
func recordError(rec *report.Record, name string, m *report.ErrorMarker) string {
	key := name
	for i := 1; rec.Has(key); i++ {
		key = name + "#error"
		if i > 1 {
			key += strconv.Itoa(i)
		}
	}
	if err := rec.SetError(key, m); err != nil {
		output.Logger.Error("Failed to record error marker", "key", key, "error", err)
	}
	return key
}
