package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the stream gateway.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	hookEventsTotal        *prometheus.CounterVec
	publishDeniedTotal     prometheus.Counter
	recordingsSavedTotal   prometheus.Counter
	recordingFailuresTotal prometheus.Counter
	onlineStreams          prometheus.Gauge
	sessions               prometheus.Gauge
}

// New creates and registers Prometheus metrics for the gateway.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drone_gateway_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drone_gateway_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		hookEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drone_gateway_hook_events_total",
			Help: "Media server webhook events accepted for processing",
		}, []string{"event"}),
		publishDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drone_gateway_publish_denied_total",
			Help: "Publish requests answered with a deny",
		}),
		recordingsSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drone_gateway_recordings_saved_total",
			Help: "Recordings persisted to the database",
		}),
		recordingFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drone_gateway_recording_failures_total",
			Help: "Recording hooks that failed to persist",
		}),
		onlineStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drone_gateway_online_streams",
			Help: "Number of sessions currently online",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drone_gateway_sessions",
			Help: "Number of stream sessions tracked in memory",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.hookEventsTotal,
		m.publishDeniedTotal,
		m.recordingsSavedTotal,
		m.recordingFailuresTotal,
		m.onlineStreams,
		m.sessions,
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

// IncHookEvent counts one webhook of the given event name.
func (m *Metrics) IncHookEvent(event string) {
	m.hookEventsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) IncPublishDenied() {
	m.publishDeniedTotal.Inc()
}

func (m *Metrics) IncRecordingsSaved() {
	m.recordingsSavedTotal.Inc()
}

func (m *Metrics) IncRecordingFailures() {
	m.recordingFailuresTotal.Inc()
}

// SetSessions sets the session gauges.
func (m *Metrics) SetSessions(total, online int) {
	m.sessions.Set(float64(total))
	m.onlineStreams.Set(float64(online))
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
