package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNoTasks         = errors.New("no tasks")
	ErrNoModels        = errors.New("no models")
	ErrNilComponent    = errors.New("nil component")
	ErrDuplicateModel  = errors.New("duplicate model name")
	ErrDuplicateMetric = errors.New("duplicate metric")
	ErrKeyCollision    = errors.New("result key collision")
	ErrBatchSize       = errors.New("invalid batch size")
	ErrRunning         = errors.New("experiment is already running")
)

// ConfigError is a misconfiguration found before any (task, model) pair executes.
// It is the only failure that aborts a run.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// panicError converts a recovered panic value into an error.
func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
