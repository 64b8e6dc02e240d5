package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modofit_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	CSRFRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modofit_csrf_rejections_total",
			Help: "Total number of requests rejected by CSRF verification",
		},
		[]string{"reason"},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modofit_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"outcome"},
	)

	SessionRegenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modofit_session_regenerations_total",
			Help: "Total number of session ID regenerations",
		},
		[]string{"trigger"},
	)

	AuthorizationDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modofit_authorization_denials_total",
			Help: "Total number of requests denied by authorization guards",
		},
		[]string{"guard"},
	)

	SubscriptionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modofit_subscriptions_created_total",
			Help: "Total number of subscriptions purchased",
		},
		[]string{"plan"},
	)

	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modofit_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
	)
)
