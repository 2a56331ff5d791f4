package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// RateLimitDecisions counts limiter outcomes: allowed, denied, store_error.
	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limiter decisions by identity scope",
		},
		[]string{"scope", "decision"},
	)

	TokenOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_operations_total",
			Help: "Token service operations by result",
		},
		[]string{"operation", "result"},
	)

	MailEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_events_total",
			Help: "Mail events published and delivered",
		},
		[]string{"stage", "status"},
	)
)

var registerOnce sync.Once

// InitMetrics registers the collectors with the default registry. It is
// safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests,
			HTTPDuration,
			RepositoryCalls,
			RepositoryDuration,
			RateLimitDecisions,
			TokenOperations,
			MailEvents,
		)
	})
}
