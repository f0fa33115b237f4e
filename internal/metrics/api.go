// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_server_request_total",
		Help: "Total number of Jellyfin HTTP request attempts",
	}, []string{"method", "endpoint", "status_class"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jfplay_server_request_duration_seconds",
		Help:    "Duration of Jellyfin HTTP requests per attempt",
		Buckets: prometheus.ExponentialBuckets(0.05, 2.0, 8),
	}, []string{"method", "endpoint", "status_class"})

	apiRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_server_request_errors_total",
		Help: "Number of Jellyfin request attempts that failed",
	}, []string{"method", "endpoint", "status_class"})

	apiRequestRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_server_request_retries_total",
		Help: "Number of Jellyfin request retries performed",
	}, []string{"method", "endpoint", "status_class"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jfplay_server_breaker_state",
		Help: "Server circuit breaker position (1 for the active state)",
	}, []string{"upstream", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_server_breaker_trips_total",
		Help: "Times the server circuit breaker opened",
	}, []string{"upstream", "reason"})

	breakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_server_breaker_rejections_total",
		Help: "Server calls refused while the circuit breaker was open",
	}, []string{"upstream"})
)

var breakerStates = [...]string{"closed", "half-open", "open"}

// StatusClass buckets an HTTP outcome for labelling.
func StatusClass(err error, status int) string {
	if err != nil {
		return "error"
	}
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status > 0:
		return "1xx"
	}
	return "unknown"
}

// RecordServerAttempt records a single Jellyfin request attempt.
func RecordServerAttempt(method, endpoint string, status int, duration time.Duration, err error, retry bool) {
	class := StatusClass(err, status)
	apiRequestTotal.WithLabelValues(method, endpoint, class).Inc()
	apiRequestDuration.WithLabelValues(method, endpoint, class).Observe(duration.Seconds())
	if class != "2xx" {
		apiRequestErrors.WithLabelValues(method, endpoint, class).Inc()
	}
	if retry {
		apiRequestRetries.WithLabelValues(method, endpoint, class).Inc()
	}
}

// SetBreakerState marks state as the only active breaker position.
func SetBreakerState(upstream, state string) {
	for _, st := range breakerStates {
		v := 0.0
		if st == state {
			v = 1
		}
		breakerState.WithLabelValues(upstream, st).Set(v)
	}
}

// RecordBreakerTrip counts an opening of the breaker.
func RecordBreakerTrip(upstream, reason string) {
	breakerTrips.WithLabelValues(upstream, reason).Inc()
}

// RecordBreakerRejection counts a call refused by an open breaker.
func RecordBreakerRejection(upstream string) {
	breakerRejections.WithLabelValues(upstream).Inc()
}
