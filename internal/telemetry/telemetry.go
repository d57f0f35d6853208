// Package telemetry exposes Prometheus collectors for the archive service.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sagasStartedTotal         prometheus.Counter
	sagasCompletedTotal       *prometheus.CounterVec
	sagaPollAttempts          prometheus.Histogram
	orphanedArtifactsTotal    prometheus.Counter
	notificationFailuresTotal prometheus.Counter
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sagasStartedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archive_sagas_started_total",
				Help: "Total number of archival sagas launched.",
			},
		)

		sagasCompletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_sagas_completed_total",
				Help: "Total number of finished sagas, labeled by outcome and failing stage.",
			},
			[]string{"outcome", "stage"},
		)

		sagaPollAttempts = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archive_saga_poll_attempts",
				Help:    "Poll attempts consumed before a crawl completed or the budget ran out.",
				Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 30},
			},
		)

		orphanedArtifactsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archive_orphaned_artifacts_total",
				Help: "Stored artifacts whose catalog write failed and which need manual reconciliation.",
			},
		)

		notificationFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archive_notification_failures_total",
				Help: "Best-effort notifications that could not be delivered.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SagaStarted records the launch of one saga.
func SagaStarted() {
	if sagasStartedTotal == nil {
		return
	}
	sagasStartedTotal.Inc()
}

// SagaCompleted records a finished saga. Stage names the step that
// failed, or "none" on success.
func SagaCompleted(outcome, stage string) {
	if sagasCompletedTotal == nil {
		return
	}
	sagasCompletedTotal.WithLabelValues(outcome, stage).Inc()
}

// ObservePollAttempts records how many status polls a saga consumed.
func ObservePollAttempts(n int) {
	if sagaPollAttempts == nil {
		return
	}
	sagaPollAttempts.Observe(float64(n))
}

// OrphanedArtifact records a stored artifact with no catalog entry.
func OrphanedArtifact() {
	if orphanedArtifactsTotal == nil {
		return
	}
	orphanedArtifactsTotal.Inc()
}

// NotificationFailed records one undelivered notification.
func NotificationFailed() {
	if notificationFailuresTotal == nil {
		return
	}
	notificationFailuresTotal.Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if httpRequestsTotal == nil || httpRequestDuration == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, statusText(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusText(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
