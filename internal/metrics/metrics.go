package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "liveness"

// Metrics holds the Prometheus collectors of the liveness service.
// Collectors live on a private registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted   prometheus.Counter
	SessionsFinished  *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	Frames            *prometheus.CounterVec
	DetectionErrors   *prometheus.CounterVec
	DetectionDuration *prometheus.HistogramVec
	LedgerSessions    *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Liveness sessions started.",
		}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Liveness sessions finished, by terminal status.",
		}, []string{"status"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory by this instance.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames processed, by outcome.",
		}, []string{"outcome"}),
		DetectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_errors_total",
			Help:      "Face detection failures absorbed as no-face frames, by provider.",
		}, []string{"provider"}),
		DetectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Face detection latency, by provider.",
			Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"provider"}),
		LedgerSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_sessions",
			Help:      "Sessions in the database ledger, by status.",
		}, []string{"status"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsStarted,
		m.SessionsFinished,
		m.ActiveSessions,
		m.Frames,
		m.DetectionErrors,
		m.DetectionDuration,
		m.LedgerSessions,
	)

	return m
}

// Registry exposes the private registry (tests, custom collectors)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDetection records one provider call
func (m *Metrics) ObserveDetection(provider string, elapsed time.Duration, err error) {
	m.DetectionDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if err != nil {
		m.DetectionErrors.WithLabelValues(provider).Inc()
	}
}

// SessionStarted counts a new in-memory session
func (m *Metrics) SessionStarted() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// SessionFinished counts a released in-memory session
func (m *Metrics) SessionFinished(status string) {
	m.SessionsFinished.WithLabelValues(status).Inc()
	m.ActiveSessions.Dec()
}

// FrameProcessed counts one frame outcome
func (m *Metrics) FrameProcessed(outcome string) {
	m.Frames.WithLabelValues(outcome).Inc()
}
