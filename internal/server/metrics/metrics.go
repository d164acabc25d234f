// Package metrics exposes Prometheus instrumentation for the archive API
// and its backend queries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buckets for seconds resolutions of histograms
var buckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "elmond",
			Name:      "api_requests_total",
			Help:      "API requests by route and response code.",
		},
		[]string{"route", "code"},
	)
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "elmond",
			Name:      "api_request_duration_seconds",
			Help:      "Time taken to answer an API request.",
			Buckets:   buckets,
		},
		[]string{"route"},
	)
	BackendQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "elmond",
			Name:      "backend_queries_total",
			Help:      "Queries sent to the document store by index and outcome.",
		},
		[]string{"index", "outcome"},
	)
	BackendQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "elmond",
			Name:      "backend_query_duration_seconds",
			Help:      "Time taken by a document store query.",
			Buckets:   buckets,
		},
		[]string{"index"},
	)
	DroppedItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "elmond",
			Name:      "dropped_items_total",
			Help:      "Metadata groups and data points skipped because the stored document had an unexpected shape.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.DefaultRegisterer.MustRegister(
		APIRequests,
		APIRequestDuration,
		BackendQueries,
		BackendQueryDuration,
		DroppedItems,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
