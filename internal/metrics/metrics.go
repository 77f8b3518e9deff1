// Package metrics provides Prometheus instrumentation for the back-office API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxpopulous",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "voxpopulous",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// EntitlementResolutions counts resolver loads by source (catalog, legacy, none).
	EntitlementResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxpopulous",
			Name:      "entitlement_resolutions_total",
			Help:      "Entitlement resolutions by feature source.",
		},
		[]string{"source"},
	)

	EntitlementCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxpopulous",
			Name:      "entitlement_cache_lookups_total",
			Help:      "Entitlement cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	// QuotaDecisions counts quota checks by resource and outcome
	// (allowed, exceeded, race_lost).
	QuotaDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxpopulous",
			Name:      "quota_decisions_total",
			Help:      "Quota decisions by resource and outcome.",
		},
		[]string{"resource", "outcome"},
	)

	AccessDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxpopulous",
			Name:      "access_denials_total",
			Help:      "Requests refused by the permission, entitlement, or billing gates.",
		},
		[]string{"reason"},
	)

	BillingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxpopulous",
			Name:      "billing_status_transitions_total",
			Help:      "Billing status transitions applied to tenants.",
		},
		[]string{"from", "to"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EntitlementResolutions,
		EntitlementCacheLookups,
		QuotaDecisions,
		AccessDenials,
		BillingTransitions,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency keyed by the chi route
// pattern so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
