package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PublicationTasksStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "markethub_publication_tasks_started_total",
			Help: "Total number of publication tasks created.",
		},
	)

	SagaStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markethub_saga_steps_total",
			Help: "Total number of saga step executions by step and outcome.",
		},
		[]string{"step", "outcome"}, // outcome: ok, retry, fail
	)

	StepRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markethub_step_retries_total",
			Help: "Total number of saga step retries by step and reason.",
		},
		[]string{"step", "reason"}, // e.g. transient, http_5xx, timeout
	)

	PublicationTasksFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markethub_publication_tasks_finished_total",
			Help: "Total number of publication tasks reaching a terminal status.",
		},
		[]string{"status"}, // COMPLETED, FAILED
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markethub_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts by result status.",
		},
		[]string{"status"}, // completed, failed
	)

	WebhookDeliverySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "markethub_webhook_delivery_seconds",
			Help:    "Webhook delivery round-trip latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	EnhancerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markethub_enhancer_requests_total",
			Help: "Total number of content enhancement provider calls by outcome.",
		},
		[]string{"outcome"}, // ok, fallback, error
	)

	MarketplacePublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markethub_marketplace_publishes_total",
			Help: "Total number of marketplace publish calls by marketplace and outcome.",
		},
		[]string{"marketplace", "outcome"}, // outcome: ok, error
	)

	QueueBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "markethub_queue_backlog",
			Help: "Total number of messages waiting across the publication topics.",
		},
	)

	NSQTopicDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "markethub_nsq_topic_depth",
			Help: "Depth of NSQ channels by topic and channel.",
		},
		[]string{"topic", "channel"},
	)

	NSQChannelInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "markethub_nsq_channel_inflight",
			Help: "In-flight messages for NSQ channels by topic and channel.",
		},
		[]string{"topic", "channel"},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		PublicationTasksStartedTotal,
		SagaStepsTotal,
		StepRetriesTotal,
		PublicationTasksFinishedTotal,
		WebhookDeliveriesTotal,
		WebhookDeliverySeconds,
		EnhancerRequestsTotal,
		MarketplacePublishesTotal,
		QueueBacklog,
		NSQTopicDepth,
		NSQChannelInFlight,
	)
}

// RecordTaskStarted increments the started-tasks counter
func RecordTaskStarted() {
	PublicationTasksStartedTotal.Inc()
}

// RecordStep records one saga step execution with its outcome
func RecordStep(step, outcome string) {
	SagaStepsTotal.WithLabelValues(step, outcome).Inc()
}

// RecordStepRetry records a scheduled retry of a saga step
func RecordStepRetry(step, reason string) {
	StepRetriesTotal.WithLabelValues(step, reason).Inc()
}

// RecordTaskFinished records a task reaching COMPLETED or FAILED
func RecordTaskFinished(status string) {
	PublicationTasksFinishedTotal.WithLabelValues(status).Inc()
}

// RecordWebhookDelivery records one webhook POST attempt and its latency
func RecordWebhookDelivery(status string, duration time.Duration) {
	WebhookDeliveriesTotal.WithLabelValues(status).Inc()
	WebhookDeliverySeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordEnhancerRequest records one provider call outcome
func RecordEnhancerRequest(outcome string) {
	EnhancerRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordMarketplacePublish records one marketplace publish call
func RecordMarketplacePublish(marketplace, outcome string) {
	MarketplacePublishesTotal.WithLabelValues(marketplace, outcome).Inc()
}

// UpdateQueueBacklog sets the aggregate backlog gauge
func UpdateQueueBacklog(count float64) {
	QueueBacklog.Set(count)
}

// UpdateNSQTopicDepth sets the per-channel depth gauge
func UpdateNSQTopicDepth(topic, channel string, depth float64) {
	NSQTopicDepth.WithLabelValues(topic, channel).Set(depth)
}

// UpdateNSQChannelInFlight sets the per-channel in-flight gauge
func UpdateNSQChannelInFlight(topic, channel string, count float64) {
	NSQChannelInFlight.WithLabelValues(topic, channel).Set(count)
}
