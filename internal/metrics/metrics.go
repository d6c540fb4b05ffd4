// Package metrics provides Prometheus metrics for the ranking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "talentsearch"

var (
	// SearchesTotal counts pipeline invocations by result.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of search pipeline invocations",
		},
		[]string{"status"},
	)

	// StageDuration measures each pipeline stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of search pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// EnhancementsTotal counts query enhancement outcomes.
	EnhancementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhancements_total",
			Help:      "Total number of query enhancements by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// EmbeddingsTotal counts embeddings by model status.
	EmbeddingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_total",
			Help:      "Total number of query embeddings by model status",
		},
		[]string{"status"},
	)

	// RerankTotal counts re-rank calls by model status.
	RerankTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_total",
			Help:      "Total number of re-rank calls by model status",
		},
		[]string{"status"},
	)

	// ErrorsTotal counts swallowed upstream errors and skipped records.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of recovered errors",
		},
		[]string{"operation", "error_type"},
	)

	// ResultsReturned observes the size of returned result lists.
	ResultsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_returned",
			Help:      "Distribution of result list sizes",
			Buckets:   []float64{0, 1, 5, 10, 20, 40, 100},
		},
	)
)

// RecordSearch records one pipeline invocation.
func RecordSearch(status string, results int) {
	SearchesTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		ResultsReturned.Observe(float64(results))
	}
}

// RecordStage records the duration of a pipeline stage.
func RecordStage(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordEnhancement records an enhancement outcome.
func RecordEnhancement(strategy, outcome string) {
	EnhancementsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordEmbedding records the model status of one embedding.
func RecordEmbedding(status string) {
	EmbeddingsTotal.WithLabelValues(status).Inc()
}

// RecordRerank records the model status of one re-rank call.
func RecordRerank(status string) {
	RerankTotal.WithLabelValues(status).Inc()
}

// RecordError records a recovered error.
func RecordError(operation, errorType string) {
	ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}
