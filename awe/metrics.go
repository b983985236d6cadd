package awe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus-compatible measurements of engine activity:
// in-flight tasks, queue depth, restart/duplication counts, and
// per-phase durations. All metrics are namespaced "awe_".
type Metrics struct {
	tasksInflight prometheus.Gauge
	tagsetLen     prometheus.Gauge

	iterationDuration *prometheus.HistogramVec
	taskLatency       prometheus.Histogram

	restarts      prometheus.Counter
	duplications  prometheus.Counter
	invalidModels prometheus.Counter

	registry prometheus.Registerer
	enabled  bool
}

// NewMetrics creates and registers the engine's metrics with registry. A
// nil registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		enabled:  true,

		tasksInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "awe",
			Name:      "tasks_inflight",
			Help:      "Number of tasks currently submitted to the transport and awaiting a result",
		}),
		tagsetLen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "awe",
			Name:      "tagset_len",
			Help:      "Number of distinct task tags currently tracked for speculative duplication",
		}),
		iterationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "awe",
			Name:      "phase_duration_seconds",
			Help:      "Duration of an iteration phase (submit, barrier, resample)",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		taskLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "awe",
			Name:      "task_latency_seconds",
			Help:      "Wall-clock time between a task's submission and its accepted result",
			Buckets:   prometheus.DefBuckets,
		}),
		restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "awe",
			Name:      "task_restarts_total",
			Help:      "Cumulative count of task restarts after execution or marshal failure",
		}),
		duplications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "awe",
			Name:      "task_duplications_total",
			Help:      "Cumulative count of opportunistic speculative task duplicates submitted",
		}),
		invalidModels: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "awe",
			Name:      "invalid_models_total",
			Help:      "Cumulative count of walkers marked invalid by a bad-model task result",
		}),
	}
}

// SetTasksInflight records the current number of submitted, unresolved
// tasks.
func (m *Metrics) SetTasksInflight(n int) {
	if m == nil || !m.enabled {
		return
	}
	m.tasksInflight.Set(float64(n))
}

// SetTagSetLen records the current TagSet size.
func (m *Metrics) SetTagSetLen(n int) {
	if m == nil || !m.enabled {
		return
	}
	m.tagsetLen.Set(float64(n))
}

// ObservePhaseDuration records how long the named iteration phase took.
func (m *Metrics) ObservePhaseDuration(phase string, d time.Duration) {
	if m == nil || !m.enabled {
		return
	}
	m.iterationDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveTaskLatency records the time between a task's submission and its
// accepted result.
func (m *Metrics) ObserveTaskLatency(d time.Duration) {
	if m == nil || !m.enabled {
		return
	}
	m.taskLatency.Observe(d.Seconds())
}

// IncRestarts increments the restart counter.
func (m *Metrics) IncRestarts() {
	if m == nil || !m.enabled {
		return
	}
	m.restarts.Inc()
}

// IncDuplications increments the speculative-duplication counter.
func (m *Metrics) IncDuplications() {
	if m == nil || !m.enabled {
		return
	}
	m.duplications.Inc()
}

// IncInvalidModels increments the invalid-model counter.
func (m *Metrics) IncInvalidModels() {
	if m == nil || !m.enabled {
		return
	}
	m.invalidModels.Inc()
}
