// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "elimage"

var (
	// Ingests counts upload items by result: stored, duplicate, failed.
	Ingests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingests_total",
		Help:      "Upload items processed, by result.",
	}, []string{"result"})

	// Deliveries counts object responses by I/O path and status class.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Object responses, by read path and status code.",
	}, []string{"path", "code"})

	// BytesServed counts object bytes written to clients.
	BytesServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "served_bytes_total",
		Help:      "Object bytes written to clients.",
	})

	// Transcodes counts derived artifact conversions by result.
	Transcodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcodes_total",
		Help:      "Derived artifact conversions, by result.",
	}, []string{"result"})

	// TranscodeSeconds observes conversion latency.
	TranscodeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcode_duration_seconds",
		Help:      "Time spent converting an original into its derived artifact.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
