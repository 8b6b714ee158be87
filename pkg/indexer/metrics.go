package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the indexer's Prometheus collectors.
type Metrics struct {
	// EmbeddingRequests counts provider calls. Labels: operation (index, search)
	EmbeddingRequests *prometheus.CounterVec

	// IndexSkipped counts records whose checksum was unchanged.
	IndexSkipped *prometheus.CounterVec

	// IndexUpserts counts documents written. Labels: entity
	IndexUpserts *prometheus.CounterVec

	// StaleHitsDeleted counts hits removed because their record vanished.
	StaleHitsDeleted *prometheus.CounterVec

	// QueryCacheHits counts search embeddings served from the query cache.
	QueryCacheHits prometheus.Counter

	// SearchDuration tracks end-to-end search latency.
	SearchDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which keeps tests and embedded use free of
// global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EmbeddingRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vecindex",
				Name:      "embedding_requests_total",
				Help:      "Total number of embedding provider requests",
			},
			[]string{"operation"},
		),
		IndexSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vecindex",
				Name:      "index_skipped_total",
				Help:      "Total number of records skipped because their checksum was unchanged",
			},
			[]string{"entity"},
		),
		IndexUpserts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vecindex",
				Name:      "index_upserts_total",
				Help:      "Total number of documents upserted into a vector store",
			},
			[]string{"entity"},
		),
		StaleHitsDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vecindex",
				Name:      "stale_hits_deleted_total",
				Help:      "Total number of search hits deleted because their record no longer exists",
			},
			[]string{"entity"},
		),
		QueryCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vecindex",
				Name:      "query_cache_hits_total",
				Help:      "Total number of search query embeddings served from cache",
			},
		),
		SearchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "vecindex",
				Name:      "search_duration_seconds",
				Help:      "Duration of search requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}
