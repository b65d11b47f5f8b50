package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertcache_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alertcache_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Ingest metrics
	IngestDataPointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertcache_ingest_data_points_total",
			Help: "Total number of data points received",
		},
		[]string{"source", "status"}, // source: http, kafka; status: accepted, rejected
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertcache_ingest_batch_size",
			Help:    "Size of data point batches received",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Cache element metrics
	ElementEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertcache_element_evaluations_total",
			Help: "Total number of cache element evaluations",
		},
		[]string{"kind"},
	)

	ElementMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertcache_element_matches_total",
			Help: "Total number of cache element matches",
		},
		[]string{"kind"},
	)

	ElementErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertcache_element_errors_total",
			Help: "Total number of cache element evaluation errors",
		},
		[]string{"kind"},
	)

	// Cache lifecycle metrics
	CacheElements = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertcache_cache_elements",
			Help: "Number of cache elements currently loaded",
		},
	)

	CacheLoadRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertcache_cache_load_rejected_total",
			Help: "Total number of conditions rejected while loading the cache",
		},
		[]string{"reason"}, // reason: unsupported_operator, invalid_element, invalid_condition
	)

	CacheLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertcache_cache_load_duration_seconds",
			Help:    "Time taken to rebuild the condition cache",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Availability duration metrics
	DurationChecksScheduledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertcache_duration_checks_scheduled_total",
			Help: "Total number of deferred availability duration checks scheduled",
		},
	)

	DurationChecksFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertcache_duration_checks_fired_total",
			Help: "Total number of deferred availability duration checks run",
		},
		[]string{"result"}, // result: matched, cleared, unknown, error
	)

	DurationChecksPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertcache_duration_checks_pending",
			Help: "Deferred availability duration checks waiting to run",
		},
	)

	// Signal queue / worker metrics
	SignalQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertcache_signal_queue_size",
			Help: "Current size of the match signal queue",
		},
	)

	SignalQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertcache_signal_queue_capacity",
			Help: "Capacity of the match signal queue",
		},
	)

	SignalsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertcache_signals_dropped_total",
			Help: "Total number of match signals dropped because the queue was closed or cancelled",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertcache_worker_processed_total",
			Help: "Total number of match signals published by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertcache_worker_failed_total",
			Help: "Total number of match signals workers failed to publish",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertcache_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch of match signals",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertcache_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertcache_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertcache_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertcache_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	KafkaConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertcache_kafka_consumed_total",
			Help: "Total number of data point messages consumed from Kafka",
		},
		[]string{"status"}, // status: dispatched, invalid, failed
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertcache_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
