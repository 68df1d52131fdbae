package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	repositoriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "indexer",
			Name:      "repositories_total",
			Help:      "Repositories processed, by status",
		},
		[]string{"status"},
	)

	chunksIndexedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "indexer",
			Name:      "chunks_indexed_total",
			Help:      "Chunks embedded and stored",
		},
	)

	itemsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "indexer",
			Name:      "items_skipped_total",
			Help:      "Documents or chunks skipped after a per-item failure, by stage",
		},
		[]string{"stage"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coderag",
			Subsystem: "indexer",
			Name:      "run_duration_seconds",
			Help:      "Wall time of full indexing runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
)
