package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the restream orchestrator.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	sessionsStarted     prometheus.Counter
	startFailures       *prometheus.CounterVec
	sessionsStopped     prometheus.Counter
	destinationOutcomes *prometheus.CounterVec
	teardownFailures    prometheus.Counter
	accountingDrift     *prometheus.CounterVec
	activeSessions      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the orchestrator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restream_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restream_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restream_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		startFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restream_session_start_failures_total",
			Help: "Session starts rejected, by reason",
		}, []string{"reason"}),
		sessionsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restream_sessions_stopped_total",
			Help: "Total number of sessions stopped",
		}),
		destinationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restream_destinations_total",
			Help: "Push-publish destinations configured, by outcome",
		}, []string{"outcome"}),
		teardownFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restream_teardown_failures_total",
			Help: "Push-publish entries that could not be removed at stop",
		}),
		accountingDrift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restream_accounting_drift_total",
			Help: "Active-session counter updates that did not persist, by operation",
		}, []string{"op"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "restream_active_sessions",
			Help: "Number of sessions in the registry",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.sessionsStarted,
		m.startFailures,
		m.sessionsStopped,
		m.destinationOutcomes,
		m.teardownFailures,
		m.accountingDrift,
		m.activeSessions,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

func (m *Metrics) IncSessionsStarted() {
	m.sessionsStarted.Inc()
}

// IncStartFailure counts a rejected start under reason (an error code).
func (m *Metrics) IncStartFailure(reason string) {
	m.startFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSessionsStopped() {
	m.sessionsStopped.Inc()
}

// ObserveDestination counts one fan-out outcome ("connected" or "failed").
func (m *Metrics) ObserveDestination(outcome string) {
	m.destinationOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTeardownFailures(n int) {
	m.teardownFailures.Add(float64(n))
}

// IncAccountingDrift counts a counter update ("increment" or "decrement")
// that did not persist.
func (m *Metrics) IncAccountingDrift(op string) {
	m.accountingDrift.WithLabelValues(op).Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
