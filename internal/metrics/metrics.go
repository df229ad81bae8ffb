// Package metrics exposes Prometheus collectors for process lifecycle activity
// and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sgi"

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Process lifecycle metrics
	ProcessesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_created_total",
			Help:      "Total number of processes created",
		},
	)

	ProcessesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_deleted_total",
			Help:      "Total number of processes deleted",
		},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Total number of accepted status transitions",
		},
		[]string{"from", "to"},
	)

	EventsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Total number of timeline events appended",
		},
		[]string{"type"},
	)

	// Rejections by error kind (unauthorized, invalid_transition, ...)
	OperationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_rejections_total",
			Help:      "Total number of rejected core operations by reason",
		},
		[]string{"operation", "reason"},
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_operation_duration_seconds",
			Help:      "Duration of backend operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	SessionChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_changes_total",
			Help:      "Total number of session changes applied",
		},
		[]string{"kind", "origin"},
	)
)

func RecordProcessCreated() { ProcessesCreated.Inc() }

func RecordProcessDeleted() { ProcessesDeleted.Inc() }

func RecordTransition(from, to string) {
	StatusTransitions.WithLabelValues(from, to).Inc()
}

func RecordEvent(eventType string) {
	EventsAppended.WithLabelValues(eventType).Inc()
}

func RecordRejection(operation, reason string) {
	OperationRejections.WithLabelValues(operation, reason).Inc()
}

func RecordSessionChange(kind string, remote bool) {
	origin := "local"
	if remote {
		origin = "remote"
	}
	SessionChanges.WithLabelValues(kind, origin).Inc()
}

// TrackBackend returns a function that records the duration of a backend
// operation started at the time of the call.
func TrackBackend(operation string) func() {
	start := time.Now()
	return func() {
		BackendDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latencies labelled by the matched
// chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
