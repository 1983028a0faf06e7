// Package metrics exposes eventhub's Prometheus collectors. Collectors are
// registered on the default registry at init, and /metrics serves them
// through promhttp.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RSVP operations and outcomes used as label values.
const (
	OpJoin  = "join"
	OpLeave = "leave"

	ResultJoined        = "joined"
	ResultLeft          = "left"
	ResultAlreadyJoined = "already_joined"
	ResultUnavailable   = "unavailable"
	ResultNotFound      = "not_found"
	ResultError         = "error"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventhub_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	rsvpTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_rsvp_total",
		Help: "RSVP attempts by operation and outcome",
	}, []string{"op", "result"})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"route"})
)

// ObserveHTTPRequest records one served request. route is the router
// pattern (e.g. /api/events/{id}), never the raw path.
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveRSVP counts one join or leave outcome.
func ObserveRSVP(op, result string) {
	rsvpTotal.WithLabelValues(op, result).Inc()
}

// ObserveRateLimited counts a request rejected on route.
func ObserveRateLimited(route string) {
	rateLimitedTotal.WithLabelValues(route).Inc()
}
