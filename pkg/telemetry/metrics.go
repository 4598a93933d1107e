package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the deploy tooling. A nil
// *Metrics (or one created with Enabled=false) is a valid no-op collector,
// so callers never need to guard instrumentation sites.
type Metrics struct {
	config MetricsConfig

	buildsStarted    prometheus.Counter
	buildsCompleted  *prometheus.CounterVec
	buildDuration    prometheus.Histogram
	resourcesPlanned *prometheus.CounterVec
	behaviorsDropped prometheus.Counter
	rulesSynthesized *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		buildsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_started_total",
			Help:      "Total number of topology builds started.",
		}),
		buildsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_completed_total",
			Help:      "Total number of topology builds completed, by status.",
		}, []string{"status"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of topology builds.",
			Buckets:   prometheus.DefBuckets,
		}),
		resourcesPlanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resources_planned_total",
			Help:      "Total number of resource nodes planned, by kind.",
		}, []string{"kind"}),
		behaviorsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "behaviors_dropped_total",
			Help:      "Total number of manifest behaviors dropped from routing output.",
		}),
		rulesSynthesized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_synthesized_total",
			Help:      "Total number of routing rules synthesized, by source.",
		}, []string{"source"}),
	}

	collectors := []prometheus.Collector{
		m.buildsStarted,
		m.buildsCompleted,
		m.buildDuration,
		m.resourcesPlanned,
		m.behaviorsDropped,
		m.rulesSynthesized,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// enabled reports whether the collector records anything.
func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// BuildStarted records the start of a topology build.
func (m *Metrics) BuildStarted() {
	if !m.enabled() {
		return
	}
	m.buildsStarted.Inc()
}

// BuildCompleted records a finished build with its status and duration.
func (m *Metrics) BuildCompleted(status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.buildsCompleted.WithLabelValues(status).Inc()
	m.buildDuration.Observe(duration.Seconds())
}

// ResourcePlanned records a planned resource node of the given kind.
func (m *Metrics) ResourcePlanned(kind string) {
	if !m.enabled() {
		return
	}
	m.resourcesPlanned.WithLabelValues(kind).Inc()
}

// BehaviorDropped records a behavior dropped from the routing output.
func (m *Metrics) BehaviorDropped() {
	if !m.enabled() {
		return
	}
	m.behaviorsDropped.Inc()
}

// RuleSynthesized records a synthesized routing rule by source.
func (m *Metrics) RuleSynthesized(source string) {
	if !m.enabled() {
		return
	}
	m.rulesSynthesized.WithLabelValues(source).Inc()
}

// Handler returns an HTTP handler serving the metrics in Prometheus
// exposition format, or nil when metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
