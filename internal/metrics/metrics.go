// Package metrics exposes the Prometheus collectors for the orchestration core.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "growen"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Routing and providers
	RoutingDecisions *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	// Tool-calling protocol
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallsIgnored prometheus.Counter
	ProtocolOutcomes *prometheus.CounterVec

	// Resolver and disambiguation
	ResolverResults     *prometheus.CounterVec
	DisambiguationTotal *prometheus.CounterVec

	// WebSocket sessions
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide collectors registered on the default
// Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultM = New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return defaultM
}

// New registers a fresh set of collectors on reg. Tests pass
// prometheus.NewRegistry() for both arguments.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RoutingDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_decisions_total",
				Help:      "Routing decisions by task, provider and reason",
			},
			[]string{"task", "provider", "reason"},
		),
		ProviderRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Model provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),
		ProviderLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Model provider call latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
			[]string{"provider"},
		),
		ToolCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool calls dispatched by tool and result",
			},
			[]string{"tool", "result"},
		),
		ToolCallsIgnored: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_ignored_total",
				Help:      "Tool calls dropped by the per-round cap",
			},
		),
		ProtocolOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "protocol_outcomes_total",
				Help:      "Tool-calling protocol runs by terminal state",
			},
			[]string{"state"},
		),
		ResolverResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolver_results_total",
				Help:      "Product resolver results by status",
			},
			[]string{"status"},
		),
		DisambiguationTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disambiguation_events_total",
				Help:      "Disambiguation memory events",
			},
			[]string{"event"},
		),
		WSConnectionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections_active",
				Help:      "Number of open chat sessions",
			},
		),
		WSMessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Chat session messages by direction",
			},
			[]string{"direction"},
		),
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordRouting counts one routing decision.
func (m *Metrics) RecordRouting(task, provider, reason string) {
	if m == nil {
		return
	}
	m.RoutingDecisions.WithLabelValues(task, provider, reason).Inc()
}

// RecordProviderCall records the outcome and latency of one model call.
func (m *Metrics) RecordProviderCall(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordToolCall counts one dispatched tool call. result is "ok" or an error code.
func (m *Metrics) RecordToolCall(tool, result string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, result).Inc()
}

// RecordIgnoredToolCalls counts calls dropped by the round cap.
func (m *Metrics) RecordIgnoredToolCalls(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ToolCallsIgnored.Add(float64(n))
}

// RecordProtocolOutcome counts a finished protocol run by terminal state.
func (m *Metrics) RecordProtocolOutcome(state string) {
	if m == nil {
		return
	}
	m.ProtocolOutcomes.WithLabelValues(state).Inc()
}

// RecordResolverResult counts one resolver result by status.
func (m *Metrics) RecordResolverResult(status string) {
	if m == nil {
		return
	}
	m.ResolverResults.WithLabelValues(status).Inc()
}

// RecordDisambiguation counts a disambiguation event (created, prompted, resolved, cleared).
func (m *Metrics) RecordDisambiguation(event string) {
	if m == nil {
		return
	}
	m.DisambiguationTotal.WithLabelValues(event).Inc()
}

// WSConnected adjusts the open-session gauge.
func (m *Metrics) WSConnected(delta int) {
	if m == nil {
		return
	}
	m.WSConnectionsActive.Add(float64(delta))
}

// RecordWSMessage counts one session message; direction is "in" or "out".
func (m *Metrics) RecordWSMessage(direction string) {
	if m == nil {
		return
	}
	m.WSMessagesTotal.WithLabelValues(direction).Inc()
}
