package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	dispatchDurationBucketStart  = 1.0
	dispatchDurationBucketFactor = 2.0
	dispatchDurationBucketCount  = 14
)

const (
	minioOperationBucketStart  = 0.05
	minioOperationBucketFactor = 2
	minioOperationBucketCount  = 12
)

var DispatchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "campaign_dispatch_duration_seconds",
		Help: "Time taken to dispatch a campaign to all of its targets",
		Buckets: prometheus.ExponentialBuckets(
			dispatchDurationBucketStart,
			dispatchDurationBucketFactor,
			dispatchDurationBucketCount,
		),
	},
	[]string{"channel", "status"},
)

var SendsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "campaign_sends_total",
		Help: "Per-recipient sends by channel and outcome",
	},
	[]string{"channel", "outcome"},
)

var WebhooksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhooks_total",
		Help: "Provider webhooks received by kind and processing outcome",
	},
	[]string{"kind", "outcome"},
)

var StoreWriteFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "store_write_failures_total",
		Help: "Write-through failures to the durable backend",
	},
	[]string{"collection"},
)

var MinioOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "minio_operation_duration_seconds",
		Help: "Time taken by MinIO operations",
		Buckets: prometheus.ExponentialBuckets(
			minioOperationBucketStart,
			minioOperationBucketFactor,
			minioOperationBucketCount,
		),
	},
	[]string{"operation"},
)

var KafkaMessageLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "kafka_message_latency_seconds",
		Help:    "Delay between producing a Kafka message and consuming it",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"topic"},
)

func init() {
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(SendsTotal)
	prometheus.MustRegister(WebhooksTotal)
	prometheus.MustRegister(StoreWriteFailures)
	prometheus.MustRegister(MinioOperationDuration)
	prometheus.MustRegister(KafkaMessageLatency)
}
