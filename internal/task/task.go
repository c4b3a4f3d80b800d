// Package task defines evaluation tasks: a named dataset of texts to rewrite
// plus optional task-specific scoring of the rewrites.
package task

import (
	"context"
	"errors"
)

var (
	// ErrEmptyDataset is returned when a task has no records.
	ErrEmptyDataset = errors.New("dataset is empty")
	// ErrMalformedRecord is returned when a record lacks a usable text field.
	ErrMalformedRecord = errors.New("malformed record")
)

// Task is one evaluation scenario.
type Task interface {
	Name() string
	// Texts returns the ordered texts to rewrite.
	Texts(ctx context.Context) ([]string, error)
	// Evaluator returns the task-specific scoring, or nil when the task has none.
	Evaluator() Evaluator
}

// Evaluator scores the full ordered list of rewritten texts of a task.
type Evaluator interface {
	// Keys lists the names Evaluate returns.
	Keys() []string
	Evaluate(ctx context.Context, rewrites []string) (map[string]float64, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc struct {
	Names []string
	Fn    func(ctx context.Context, rewrites []string) (map[string]float64, error)
}

func (e EvaluatorFunc) Keys() []string { return e.Names }

func (e EvaluatorFunc) Evaluate(ctx context.Context, rewrites []string) (map[string]float64, error) {
	return e.Fn(ctx, rewrites)
}

// Static is an in-memory task.
type Static struct {
	name  string
	texts []string
	eval  Evaluator
}

// New returns an in-memory task. eval may be nil.
func New(name string, texts []string, eval Evaluator) *Static {
	return &Static{name: name, texts: texts, eval: eval}
}

func (s *Static) Name() string { return s.name }

func (s *Static) Texts(context.Context) ([]string, error) {
	if len(s.texts) == 0 {
		return nil, ErrEmptyDataset
	}
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out, nil
}

func (s *Static) Evaluator() Evaluator {
	if s.eval == nil {
		return nil
	}
	return s.eval
}
