// Package monitoring exposes Prometheus metrics for fetch and index runs.
// Metrics register against the default registry; the fetch command serves
// them with promhttp when --metrics-addr is set.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts upstream HTTP attempts, including retries.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "legisync_requests_total",
		Help: "Upstream HTTP attempts, by source.",
	}, []string{"source"})

	// RetriesTotal counts responses that triggered a retry.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "legisync_retries_total",
		Help: "Upstream responses that triggered a retry, by source and reason.",
	}, []string{"source", "reason"})

	// ThrottleWait observes time spent blocked on the rate limiter
	// before each attempt.
	ThrottleWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "legisync_throttle_wait_seconds",
		Help:    "Time spent waiting for a rate limit slot, by source.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"source"})

	// PagesFetchedTotal counts pages fetched and persisted.
	PagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "legisync_pages_fetched_total",
		Help: "Pages fetched and persisted, by source and entity type.",
	}, []string{"source", "entity_type"})

	// RecordsTotal counts record put outcomes.
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "legisync_records_total",
		Help: "Record put outcomes, by entity type and outcome.",
	}, []string{"entity_type", "outcome"})

	// PartitionsTotal counts partition walk outcomes.
	PartitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "legisync_partitions_total",
		Help: "Partition walk outcomes, by source and status.",
	}, []string{"source", "status"})

	// ErrorsTotal counts terminal errors by kind.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "legisync_errors_total",
		Help: "Terminal errors, by kind.",
	}, []string{"kind"})

	// PartitionDuration observes the wall-clock length of partition
	// walks.
	PartitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "legisync_partition_duration_seconds",
		Help:    "Wall-clock duration of one partition walk, by source.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"source"})
)

// IncRequest records one upstream HTTP attempt.
func IncRequest(source string) {
	RequestsTotal.WithLabelValues(source).Inc()
}

// IncRetry records a response that triggered a retry.
func IncRetry(source, reason string) {
	RetriesTotal.WithLabelValues(source, reason).Inc()
}

// ObserveThrottleWait records time spent blocked on the limiter.
func ObserveThrottleWait(source string, waited time.Duration) {
	ThrottleWait.WithLabelValues(source).Observe(waited.Seconds())
}

// IncPage records one fetched and persisted page.
func IncPage(source, entityType string) {
	PagesFetchedTotal.WithLabelValues(source, entityType).Inc()
}

// IncRecord records one put outcome.
func IncRecord(entityType, outcome string) {
	RecordsTotal.WithLabelValues(entityType, outcome).Inc()
}

// ObservePartition records a finished partition walk.
func ObservePartition(source, status string, elapsed time.Duration) {
	PartitionsTotal.WithLabelValues(source, status).Inc()
	PartitionDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// IncError records a terminal error by kind.
func IncError(kind string) {
	ErrorsTotal.WithLabelValues(kind).Inc()
}
