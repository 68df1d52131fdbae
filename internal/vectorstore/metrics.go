package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "vectorstore",
			Name:      "upserts_total",
			Help:      "Points written, by result",
		},
		[]string{"result"},
	)

	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "vectorstore",
			Name:      "searches_total",
			Help:      "Similarity searches, by result",
		},
		[]string{"result"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "vectorstore",
			Name:      "retries_total",
			Help:      "Retries after transient failures, by operation",
		},
		[]string{"operation"},
	)

	oversizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "vectorstore",
			Name:      "oversized_payloads_total",
			Help:      "Points whose payload exceeded the size warning threshold",
		},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coderag",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
