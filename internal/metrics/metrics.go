// Package metrics registers the process's Prometheus collectors and exposes
// them via promhttp.Handler().
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "legal_search_cache_hits_total", Help: "Cache hits by cache name"},
		[]string{"cache"},
	)
	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "legal_search_cache_misses_total", Help: "Cache misses by cache name"},
		[]string{"cache"},
	)
	EncodeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "legal_search_encode_latency_seconds", Help: "Embedding encode latency", Buckets: prometheus.DefBuckets},
	)
	SearchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "legal_search_query_latency_seconds", Help: "Search query latency", Buckets: prometheus.DefBuckets},
	)
	IndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "legal_search_index_size", Help: "Current vector index size"},
	)
	RebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "legal_search_index_rebuild_seconds", Help: "Index rebuild duration", Buckets: prometheus.DefBuckets},
	)
	RebuildFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "legal_search_index_rebuild_failures_total", Help: "Failed index rebuilds"},
	)
	StartupTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "legal_search_startup_timestamp", Help: "Unix time when the process started"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheHits, CacheMisses, EncodeLatency, SearchLatency,
		IndexSize, RebuildDuration, RebuildFailures, StartupTimestamp,
	)
	StartupTimestamp.Set(float64(time.Now().Unix()))
}

// ObserveEncode records one embedding encode's latency.
func ObserveEncode(d time.Duration) {
	EncodeLatency.Observe(d.Seconds())
}

// ObserveSearch records one search query's latency.
func ObserveSearch(d time.Duration) {
	SearchLatency.Observe(d.Seconds())
}

// ObserveRebuild records one index rebuild's duration and outcome.
func ObserveRebuild(d time.Duration, ok bool) {
	RebuildDuration.Observe(d.Seconds())
	if !ok {
		RebuildFailures.Inc()
	}
}
