// Package telemetry exposes Prometheus metrics for the response engine.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments. All recording is
// fire-and-forget; nothing here can fail a request.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RetrievedChunks    prometheus.Histogram
	ProcessingDuration *prometheus.HistogramVec
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
}

// NewMetrics registers the engine instruments on reg. Passing nil uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "answerd",
			Name:      "requests_total",
			Help:      "Processed messages by mode and outcome.",
		}, []string{"mode", "status"}),
		RetrievedChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "answerd",
			Name:      "retrieved_chunks",
			Help:      "Chunks surviving the relevance threshold per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		ProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "answerd",
			Name:      "processing_duration_seconds",
			Help:      "End-to-end message processing duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "answerd",
			Name:      "cache_hits_total",
			Help:      "Cache hits by cache name.",
		}, []string{"cache"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "answerd",
			Name:      "cache_misses_total",
			Help:      "Cache misses by cache name.",
		}, []string{"cache"}),
	}
}
