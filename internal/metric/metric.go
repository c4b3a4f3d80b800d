// Package metric defines the metric function contract and the built-in metrics.
//
// A metric compares original texts with their rewrites pair by pair and
// returns one or more named score lists, each as long as the input.
package metric

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrLengthMismatch is returned when originals and rewrites differ in length.
	ErrLengthMismatch = errors.New("inputs are different lengths")
)

// Scores maps an output key to its per-example values.
type Scores map[string][]float64

// Metric is a scoring function over (original, rewrite) pairs.
type Metric interface {
	// ID is the identifier used in configuration.
	ID() string
	// Keys lists the output keys Compute produces, in report order.
	Keys() []string
	Compute(ctx context.Context, originals, rewrites []string) (Scores, error)
}

// Func is the plain function form of a metric.
type Func func(ctx context.Context, originals, rewrites []string) (Scores, error)

type funcMetric struct {
	id   string
	keys []string
	fn   Func
}

// New wraps fn as a Metric.
func New(id string, keys []string, fn Func) Metric {
	return &funcMetric{id: id, keys: keys, fn: fn}
}

func (m *funcMetric) ID() string     { return m.id }
func (m *funcMetric) Keys() []string { return m.keys }

func (m *funcMetric) Compute(ctx context.Context, originals, rewrites []string) (Scores, error) {
	return m.fn(ctx, originals, rewrites)
}

// CheckLengths enforces the equal-length precondition shared by all metrics.
func CheckLengths(originals, rewrites []string) error {
	if len(originals) != len(rewrites) {
		return fmt.Errorf("%w: %d originals, %d rewrites", ErrLengthMismatch, len(originals), len(rewrites))
	}
	return nil
}

// OrderedKeys returns the keys of s with declared keys first, in declared order,
// then any undeclared keys sorted.
func OrderedKeys(s Scores, declared []string) []string {
	keys := make([]string, 0, len(s))
	seen := make(map[string]bool, len(s))
	for _, k := range declared {
		if _, ok := s[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var extra []string
	for k := range s {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// pairwise builds a single-key metric from a per-pair scoring function.
func pairwise(id, key string, score func(original, rewrite string) float64) Metric {
	return New(id, []string{key}, func(_ context.Context, originals, rewrites []string) (Scores, error) {
		if err := CheckLengths(originals, rewrites); err != nil {
			return nil, err
		}
		out := make([]float64, len(originals))
		for i := range originals {
			out[i] = score(originals[i], rewrites[i])
		}
		return Scores{key: out}, nil
	})
}
