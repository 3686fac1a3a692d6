package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterease_http_requests_total",
			Help: "Total number of HTTP requests served.",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meterease_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	workflowErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterease_workflow_errors_total",
			Help: "Workflow transitions blocked, by error kind.",
		},
		[]string{"kind"},
	)
	billsGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meterease_bills_generated_total",
			Help: "Total number of bills generated.",
		},
	)
)

func observeHTTPRequest(r *http.Request, status int, dur time.Duration) {
	route := routeLabel(r)
	httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(route, r.Method).Observe(dur.Seconds())
}

// routeLabel uses the matched mux pattern so session IDs never become label values
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "other"
	}
	return r.Pattern
}
