// Package metrics exposes Prometheus collectors for the analytics service and
// a risk.Observer that records model diagnostics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "engagement_analytics"

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	riskEstimations *prometheus.CounterVec
	modelFallbacks  *prometheus.CounterVec
	modelAnomalies  *prometheus.CounterVec

	sweepRuns       *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	alertsPublished prometheus.Counter
}

// New creates and registers the collectors. Process and Go runtime collectors
// are included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),

		riskEstimations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "estimations_total",
			Help:      "Risk assessments by strategy and level.",
		}, []string{"strategy", "level"}),

		modelFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "model_fallbacks_total",
			Help:      "Times the model strategy fell back to the formula.",
		}, []string{"reason"}),

		modelAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "model_anomalies_total",
			Help:      "Unknown predictions and failed probability calls.",
		}, []string{"kind"}),

		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "risk_sweeps_total",
			Help:      "Risk sweep runs by outcome.",
		}, []string{"outcome"}),

		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "risk_sweep_duration_seconds",
			Help:      "Risk sweep duration.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		alertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "high_risk_alerts_total",
			Help:      "High-risk alerts published.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.riskEstimations,
		m.modelFallbacks,
		m.modelAnomalies,
		m.sweepRuns,
		m.sweepDuration,
		m.alertsPublished,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveRisk records an assessment.
func (m *Metrics) ObserveRisk(usedModel bool, level string) {
	strategy := "formula"
	if usedModel {
		strategy = "model"
	}
	m.riskEstimations.WithLabelValues(strategy, level).Inc()
}

// ObserveSweep records a finished risk sweep.
func (m *Metrics) ObserveSweep(outcome string, d time.Duration) {
	m.sweepRuns.WithLabelValues(outcome).Inc()
	m.sweepDuration.Observe(d.Seconds())
}

// AlertPublished counts a published high-risk alert.
func (m *Metrics) AlertPublished() {
	m.alertsPublished.Inc()
}
