package engine

import (
	"errors"
	"fmt"

	"github.com/daryltucker/tau-eval/internal/anonymizer"
	"github.com/daryltucker/tau-eval/internal/metric"
	"github.com/daryltucker/tau-eval/internal/task"
)

// validate checks everything that can be known before the first pair runs.
// All problems are reported together.
func validate(tasks []task.Task, models []anonymizer.Anonymizer, metrics []metric.Metric, opts Options) error {
	var errs []error

	if len(tasks) == 0 {
		errs = append(errs, ErrNoTasks)
	}
	if len(models) == 0 {
		errs = append(errs, ErrNoModels)
	}
	if opts.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrBatchSize, opts.BatchSize))
	}

	names := make(map[string]bool, len(models))
	for i, m := range models {
		if m == nil {
			errs = append(errs, fmt.Errorf("%w: models[%d]", ErrNilComponent, i))
			continue
		}
		if names[m.Name()] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateModel, m.Name()))
		}
		names[m.Name()] = true
	}

	// owner maps each declared output key to the metric producing it.
	owner := make(map[string]string)
	ids := make(map[string]bool, len(metrics))
	for i, mt := range metrics {
		if mt == nil {
			errs = append(errs, fmt.Errorf("%w: metrics[%d]", ErrNilComponent, i))
			continue
		}
		if ids[mt.ID()] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateMetric, mt.ID()))
			continue
		}
		ids[mt.ID()] = true
		for _, k := range mt.Keys() {
			if prev, ok := owner[k]; ok {
				errs = append(errs, fmt.Errorf("%w: metrics %q and %q both produce %q", ErrKeyCollision, prev, mt.ID(), k))
				continue
			}
			owner[k] = mt.ID()
		}
	}

	// Error markers are stored under metric IDs and EvaluateKey, so no declared
	// output key may take one of those names from another producer.
	for _, mt := range metrics {
		if mt == nil {
			continue
		}
		for _, k := range mt.Keys() {
			if k == EvaluateKey {
				errs = append(errs, fmt.Errorf("%w: metric %q output uses reserved key %q", ErrKeyCollision, mt.ID(), k))
				continue
			}
			if k != mt.ID() && ids[k] {
				errs = append(errs, fmt.Errorf("%w: metric %q output %q is the ID of another metric", ErrKeyCollision, mt.ID(), k))
			}
		}
	}

	for i, t := range tasks {
		if t == nil {
			errs = append(errs, fmt.Errorf("%w: tasks[%d]", ErrNilComponent, i))
			continue
		}
		ev := t.Evaluator()
		if ev == nil {
			continue
		}
		for _, k := range ev.Keys() {
			if prev, ok := owner[k]; ok {
				errs = append(errs, fmt.Errorf("%w: task %q evaluation and metric %q both produce %q", ErrKeyCollision, t.Name(), prev, k))
			}
			if k == EvaluateKey {
				errs = append(errs, fmt.Errorf("%w: task %q evaluation uses reserved key %q", ErrKeyCollision, t.Name(), k))
			}
			if _, isOwner := owner[k]; !isOwner && ids[k] {
				errs = append(errs, fmt.Errorf("%w: task %q evaluation output %q is the ID of a metric", ErrKeyCollision, t.Name(), k))
			}
		}
	}

	return errors.Join(errs...)
}

// ResolveMetrics resolves metric identifiers once, before a run. Unknown or
// repeated identifiers yield a *ConfigError.
func ResolveMetrics(reg *metric.Registry, ids []string) ([]metric.Metric, error) {
	ms, err := reg.Resolve(ids)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return ms, nil
}
