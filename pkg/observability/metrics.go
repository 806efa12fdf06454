// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the toolgate gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// CallBuckets defines histogram buckets for upstream tool and provider calls,
// ranging from 10ms to 60s.
var CallBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolgate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: CallBuckets,
		},
		[]string{"method", "route"},
	)

	// RequestsInFlight reports HTTP requests currently being served,
	// including open MCP streams.
	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolgate_requests_in_flight",
			Help: "Requests currently being served",
		},
	)

	// ToolCallsTotal counts registry dispatches by adapter, tool, and outcome.
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_tool_calls_total",
			Help: "Tool calls dispatched to adapters",
		},
		[]string{"adapter", "tool", "status"},
	)

	// ToolDuration records adapter invocation latency.
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolgate_tool_duration_seconds",
			Help:    "Tool call duration",
			Buckets: CallBuckets,
		},
		[]string{"adapter", "tool"},
	)

	// VerificationsTotal counts identity verifications by method and result.
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_verifications_total",
			Help: "Identity verifications",
		},
		[]string{"method", "result"},
	)

	// ProviderRequestsTotal counts chat requests by requested and serving provider.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"requested", "served", "status"},
	)

	// DiscoveryRefreshTotal counts discovery refresh passes by result.
	DiscoveryRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_discovery_refresh_total",
			Help: "Discovery refresh passes",
		},
		[]string{"result"},
	)

	// DiscoveryFunctions reports the size of the current discovery generation.
	DiscoveryFunctions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolgate_discovery_functions",
			Help: "Functions in the current discovery generation",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		RequestsInFlight,
		ToolCallsTotal,
		ToolDuration,
		VerificationsTotal,
		ProviderRequestsTotal,
		DiscoveryRefreshTotal,
		DiscoveryFunctions,
		RateLimitRejectedTotal,
	)
}
