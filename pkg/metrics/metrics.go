// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ramsey-B/clover/pkg/models"
)

var (
	// ImportsTotal tracks batch runs by mode and stage (staged, committed, discarded)
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Total number of import batches by mode and stage",
		},
		[]string{"mode", "stage"},
	)

	// ImportRecordsTotal tracks how records of staged batches were classified
	ImportRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Total number of imported records by outcome",
		},
		[]string{"mode", "outcome"},
	)

	// ImportDuration tracks how long deduplicating a batch takes
	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Duration of batch deduplication in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"mode"},
	)

	// ImportBatchSize tracks the number of records per batch
	ImportBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "import",
			Name:      "batch_size",
			Help:      "Number of records per import batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// ResolutionsTotal tracks reviewer decisions
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "review",
			Name:      "resolutions_total",
			Help:      "Total number of conflict resolutions by action and status",
		},
		[]string{"action", "status"},
	)

	// KafkaMessagesConsumed tracks import requests read from Kafka
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of import requests consumed from Kafka",
		},
		[]string{"status"},
	)
)

// RecordStaged records the outcome of a deduplicated batch
func RecordStaged(mode models.Mode, batchSize int, result models.BatchResult, errors int, durationSeconds float64) {
	m := string(mode)
	ImportsTotal.WithLabelValues(m, "staged").Inc()
	ImportDuration.WithLabelValues(m).Observe(durationSeconds)
	ImportBatchSize.Observe(float64(batchSize))

	ImportRecordsTotal.WithLabelValues(m, "saved").Add(float64(result.SavedCount))
	ImportRecordsTotal.WithLabelValues(m, "exact_duplicate").Add(float64(result.ExactDuplicateCount))
	ImportRecordsTotal.WithLabelValues(m, "auto_merged").Add(float64(result.AutoMergedCount))
	ImportRecordsTotal.WithLabelValues(m, "review_required").Add(float64(result.ReviewRequiredCount))
	ImportRecordsTotal.WithLabelValues(m, "invalid").Add(float64(errors))
}

// RecordStage records a batch moving to a later stage
func RecordStage(mode models.Mode, stage string) {
	ImportsTotal.WithLabelValues(string(mode), stage).Inc()
}

// RecordResolution records a reviewer decision
func RecordResolution(action models.ResolutionAction, status string) {
	ResolutionsTotal.WithLabelValues(string(action), status).Inc()
}

// RecordKafkaMessage records a consumed import request
func RecordKafkaMessage(status string) {
	KafkaMessagesConsumed.WithLabelValues(status).Inc()
}
