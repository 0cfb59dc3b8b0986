// ABOUTME: Prometheus metrics for run execution and the run queue.
package simulation

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed by the daemon. All methods
// are safe to call on a nil receiver, which disables recording.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	phaseDuration     *prometheus.HistogramVec
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	queueDepth        prometheus.Gauge
	activeParticipant prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examload",
			Subsystem: "run",
			Name:      "completed_total",
			Help:      "Completed simulation runs by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "examload",
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of completed runs.",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"status"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "examload",
			Subsystem: "run",
			Name:      "phase_duration_seconds",
			Help:      "Duration of individual run phases.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examload",
			Subsystem: "request",
			Name:      "total",
			Help:      "Timed requests observed during participation, by category.",
		}, []string{"category"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "examload",
			Subsystem: "request",
			Name:      "duration_seconds",
			Help:      "Duration of timed requests, by category.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "examload",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of runs waiting in the queue.",
		}),
		activeParticipant: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "examload",
			Subsystem: "run",
			Name:      "active_participants",
			Help:      "Simulated participants of the currently running simulation.",
		}),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.phaseDuration,
		m.requestsTotal,
		m.requestDuration,
		m.queueDepth,
		m.activeParticipant,
	)

	return m
}

// RunCompleted records a terminal run outcome and its wall-clock duration.
func (m *Metrics) RunCompleted(status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(seconds)
}

// PhaseCompleted records the duration of one run phase.
func (m *Metrics) PhaseCompleted(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RequestObserved records one timed request sample.
func (m *Metrics) RequestObserved(category string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(category).Inc()
	m.requestDuration.WithLabelValues(category).Observe(seconds)
}

// SetQueueDepth sets the current number of queued runs.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetActiveParticipants sets the participant count of the active run, or
// zero when no run is active.
func (m *Metrics) SetActiveParticipants(n int) {
	if m == nil {
		return
	}
	m.activeParticipant.Set(float64(n))
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
