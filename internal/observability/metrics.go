package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total API requests per route, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_requests_total",
			Help: "Total API requests received",
		},
		[]string{"route", "method", "status"},
	)

	// request latency in seconds per route/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// latency of aggregation queries, labelled by query kind
	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_query_duration_seconds",
			Help:    "Histogram of report query latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// failed aggregation queries, labelled by query kind
	QueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_query_errors_total",
			Help: "Total failed report queries",
		},
		[]string{"query"},
	)

	// reports built, labelled by segmenting dimension
	ReportCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_reports_total",
			Help: "Total orders stats reports built",
		},
		[]string{"segmentby"},
	)

	// report cache lookups, labelled hit, miss or error
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_report_cache_lookups_total",
			Help: "Total report cache lookups",
		},
		[]string{"result"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_rate_limited_total",
			Help: "Total report requests rejected by the rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		QueryLatency,
		QueryErrors,
		ReportCount,
		CacheLookups,
		RateLimited,
	)
}
