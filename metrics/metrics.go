// Package metrics exposes Prometheus metrics for scan attempts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "barcodescan"

// Attempt outcomes.
const (
	OutcomeDelivered   = "delivered"
	OutcomeCancelled   = "cancelled"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
)

// Metrics holds the scan metrics and the registry they are registered with.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	attempts  *prometheus.CounterVec
	discarded prometheus.Counter
	focus     *prometheus.CounterVec
	duration  prometheus.Histogram
	active    prometheus.Gauge
}

// New creates the scan metrics on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Scan attempts by outcome.",
		}, []string{"outcome"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_candidates_total",
			Help:      "Decoded codes discarded because a result was already accepted.",
		}),
		focus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "focus_requests_total",
			Help:      "Tap-to-focus requests by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Time from start to teardown of a scan attempt.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_attempts",
			Help:      "Scan attempts currently running.",
		}),
	}

	m.registry.MustRegister(
		m.attempts,
		m.discarded,
		m.focus,
		m.duration,
		m.active,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// AttemptStarted records a running attempt.
func (m *Metrics) AttemptStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// AttemptFinished records the end of a started attempt.
func (m *Metrics) AttemptFinished(outcome string, elapsed time.Duration, discarded int64) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.attempts.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	if discarded > 0 {
		m.discarded.Add(float64(discarded))
	}
}

// AttemptRejected records an attempt that never started, for example because
// no camera exists.
func (m *Metrics) AttemptRejected(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// FocusRequest records the result of a tap-to-focus request.
func (m *Metrics) FocusRequest(result string) {
	if m == nil {
		return
	}
	m.focus.WithLabelValues(result).Inc()
}
