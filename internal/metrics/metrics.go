package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks request latency by route pattern
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"method", "path", "status"},
	)

	// GenerationLatency tracks calls to the text generation backend
	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_generation_latency_ms",
			Help:    "Text generation call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"provider", "status"},
	)

	// DBQueryDuration tracks Postgres round trips
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	DraftsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_drafts_generated_total",
			Help: "Total number of email drafts generated",
		},
		[]string{"status"}, // success, failed
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_emails_sent_total",
			Help: "Total number of emails sent through Gmail",
		},
		[]string{"status"}, // success, failed, reauth
	)

	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_auth_attempts_total",
			Help: "Total number of signup and login attempts",
		},
		[]string{"action", "status"},
	)
)

// RecordHTTPRequestDuration records one served request
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordGenerationLatency records one generation call
func RecordGenerationLatency(provider, status string, duration time.Duration) {
	GenerationLatency.WithLabelValues(provider, status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration records one database query
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func IncrementDraftsGenerated(status string) {
	DraftsGenerated.WithLabelValues(status).Inc()
}

func IncrementEmailsSent(status string) {
	EmailsSent.WithLabelValues(status).Inc()
}

func IncrementAuthAttempts(action, status string) {
	AuthAttempts.WithLabelValues(action, status).Inc()
}
