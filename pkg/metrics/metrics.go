package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by flow (register|login|refresh) and result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"flow", "result"},
	)

	// ActiveSessions tracks sessions that have been created and not yet deleted.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authgate_active_sessions",
			Help: "Number of live session records",
		},
	)

	// PasswordResets counts password reset completions.
	PasswordResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authgate_password_resets_total",
			Help: "Total number of completed password resets",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
