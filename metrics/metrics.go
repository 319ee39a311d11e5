package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_users_registered_total",
			Help: "Total accounts registered",
		},
	)

	LoginFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_login_failures_total",
			Help: "Total rejected login attempts",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"kind"}, // "text" or "image"
	)

	// Realtime metrics
	SubscribersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_subscribers_connected",
			Help: "Open realtime subscriptions",
		},
	)

	SnapshotsBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_snapshots_broadcast_total",
			Help: "Snapshots pushed to subscribers",
		},
	)

	SubscribersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_subscribers_dropped_total",
			Help: "Subscribers disconnected for falling behind",
		},
	)
)
