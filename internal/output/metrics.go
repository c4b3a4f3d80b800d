package output

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/daryltucker/tau-eval/internal/report"
)

// RunMetrics collects Prometheus metrics for one run. It is an engine observer;
// the collected series are written to a node-exporter style text file at the end.
type RunMetrics struct {
	registry *prometheus.Registry

	pairs         *prometheus.CounterVec
	entryFailures *prometheus.CounterVec
	pairDuration  *prometheus.HistogramVec
	inFlight      prometheus.Gauge
}

// NewRunMetrics creates the metric set, labelled with the run identifier.
func NewRunMetrics(runID string) *RunMetrics {
	constLabels := prometheus.Labels{"run_id": runID}
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		pairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tau_eval",
			Name:        "pairs_total",
			Help:        "Finished (task, model) pairs by outcome.",
			ConstLabels: constLabels,
		}, []string{"task", "model", "status"}),
		entryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tau_eval",
			Name:        "entry_failures_total",
			Help:        "Metric or evaluation entries recorded as errors.",
			ConstLabels: constLabels,
		}, []string{"task", "model"}),
		pairDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "tau_eval",
			Name:        "pair_duration_seconds",
			Help:        "Wall time to rewrite and score one (task, model) pair.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"model"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tau_eval",
			Name:        "pairs_in_flight",
			Help:        "Pairs currently being evaluated.",
			ConstLabels: constLabels,
		}),
	}
	m.registry.MustRegister(m.pairs, m.entryFailures, m.pairDuration, m.inFlight)
	return m
}

func (m *RunMetrics) PairStarted(string, string) {
	m.inFlight.Inc()
}

func (m *RunMetrics) PairFinished(res report.PairResult) {
	m.inFlight.Dec()

	status := "ok"
	if res.Record.Failed() {
		status = string(res.Record.Err.Kind)
	}
	m.pairs.WithLabelValues(res.TaskKey, res.Model, status).Inc()
	m.pairDuration.WithLabelValues(res.Model).Observe(res.Duration.Seconds())

	for _, e := range res.Record.Entries() {
		if e.Failed() {
			m.entryFailures.WithLabelValues(res.TaskKey, res.Model).Inc()
		}
	}
}

// Gatherer exposes the underlying registry.
func (m *RunMetrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes the current values in Prometheus text format.
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
