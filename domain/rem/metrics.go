package rem

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Healer-AI/p8fs-sub000/domain/revmap"
)

var (
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rem_queries_total",
		Help: "Total number of REM queries executed",
	}, []string{"query_type", "backend", "status"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rem_query_duration_seconds",
		Help:    "REM query execution time",
		Buckets: prometheus.DefBuckets,
	}, []string{"query_type", "backend"})

	TraverseNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rem_traverse_nodes",
		Help:    "Nodes accumulated by a TRAVERSE before the result limit",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// NewCacheEntriesGauge reports the metadata cache size at scrape time.
func NewCacheEntriesGauge(cache *revmap.MetadataCache) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "rem_metadata_cache_entries",
		Help: "Entries held by the table metadata cache",
	}, func() float64 {
		return float64(cache.Stats().TotalEntries)
	})
}

// RegisterCacheMetrics registers the cache gauge with the default registry.
func RegisterCacheMetrics(cache *revmap.MetadataCache) error {
	return prometheus.Register(NewCacheEntriesGauge(cache))
}
