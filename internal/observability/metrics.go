package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Retrieval metrics. BucketsScanned tracks how many segment round trips a
	// single pagination walk needed before its limit was satisfied.
	BucketsScanned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_retrieval_buckets_scanned",
			Help:    "Number of buckets visited per retrieval request",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
		},
		[]string{"direction"},
	)

	MessagesRetrieved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_retrieved_total",
			Help: "Total number of messages returned by retrieval",
		},
		[]string{"direction"},
	)

	SyncRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_sync_requests_total",
			Help: "Total number of delta-sync requests by outcome",
		},
		[]string{"result"}, // changed, unchanged
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"channel_id"},
	)

	WebSocketEventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_events_sent_total",
			Help: "Total number of events pushed to WebSocket clients",
		},
		[]string{"channel_id"},
	)

	// Database metrics
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
