package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	sessionsConnectedTotal prometheus.Counter
	activeSessionsGauge    prometheus.Gauge
	messagesSentTotal      *prometheus.CounterVec
	broadcastFailuresTotal prometheus.Counter
	responderRepliesTotal  prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the messenger.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deeplink_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deeplink_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		sessionsConnectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deeplink_sessions_connected_total",
			Help: "Total number of websocket sessions accepted.",
		})

		activeSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deeplink_active_sessions",
			Help: "Number of currently connected websocket sessions.",
		})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deeplink_messages_sent_total",
			Help: "Total number of messages appended, by type.",
		}, []string{"type"})

		broadcastFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deeplink_broadcast_failures_total",
			Help: "Total number of deliveries dropped due to stale sessions.",
		})

		responderRepliesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deeplink_responder_replies_total",
			Help: "Total number of automated replies appended.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			sessionsConnectedTotal,
			activeSessionsGauge,
			messagesSentTotal,
			broadcastFailuresTotal,
			responderRepliesTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// SessionsConnected exposes the counter for accepted sessions.
func SessionsConnected() prometheus.Counter {
	RegisterMetrics()
	return sessionsConnectedTotal
}

// ActiveSessions exposes the gauge tracking live sessions.
func ActiveSessions() prometheus.Gauge {
	RegisterMetrics()
	return activeSessionsGauge
}

// MessagesSent exposes the per-type message counter.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// BroadcastFailures exposes the counter for dropped deliveries.
func BroadcastFailures() prometheus.Counter {
	RegisterMetrics()
	return broadcastFailuresTotal
}

// ResponderReplies exposes the counter for automated replies.
func ResponderReplies() prometheus.Counter {
	RegisterMetrics()
	return responderRepliesTotal
}
