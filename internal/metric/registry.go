package metric

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNilMetric         = errors.New("metric is nil")
	ErrAlreadyRegistered = errors.New("metric already registered")
	ErrUnknownMetric     = errors.New("unknown metric")
	ErrDuplicateMetric   = errors.New("metric listed more than once")
)

// Registry maps metric identifiers to metrics.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds m under m.ID(). The identifier must be unique.
func (r *Registry) Register(m Metric) error {
	if m == nil {
		return ErrNilMetric
	}
	id := m.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.metrics[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	r.metrics[id] = m
	return nil
}

// MustRegister registers a metric and panics on error.
// Should only be used during startup.
func (r *Registry) MustRegister(m Metric) {
	if err := r.Register(m); err != nil {
		panic(fmt.Sprintf("metric: failed to register: %v", err))
	}
}

// Lookup returns the metric registered under id.
func (r *Registry) Lookup(id string) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[id]
	return m, ok
}

// Resolve maps identifiers to metrics, preserving order. Every unknown or repeated
// identifier is reported; nothing is returned unless all resolve.
func (r *Registry) Resolve(ids []string) ([]Metric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	seen := make(map[string]bool, len(ids))
	out := make([]Metric, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateMetric, id))
			continue
		}
		seen[id] = true
		m, ok := r.metrics[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownMetric, id))
			continue
		}
		out = append(out, m)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// IDs returns the registered identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.metrics))
	for id := range r.metrics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
