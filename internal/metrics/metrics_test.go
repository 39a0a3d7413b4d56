package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegister(t *testing.T) {
	registry := prometheus.NewRegistry()

	// This should not panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustRegister() panicked: %v", r)
		}
	}()

	MustRegister(registry)

	// Record some values so metrics appear in Gather()
	RecordTaskStarted()
	RecordStep("enhancement", "ok")
	RecordStepRetry("publishing", "transient")
	RecordTaskFinished("COMPLETED")
	RecordWebhookDelivery("completed", 100*time.Millisecond)
	RecordEnhancerRequest("ok")
	RecordMarketplacePublish("mercadolibre", "ok")
	UpdateQueueBacklog(5)
	UpdateNSQTopicDepth("publication_steps", "workers", 3)
	UpdateNSQChannelInFlight("publication_steps", "workers", 1)

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Errorf("Registry.Gather() error: %v", err)
	}

	expectedMetrics := []string{
		"markethub_publication_tasks_started_total",
		"markethub_saga_steps_total",
		"markethub_step_retries_total",
		"markethub_publication_tasks_finished_total",
		"markethub_webhook_deliveries_total",
		"markethub_webhook_delivery_seconds",
		"markethub_enhancer_requests_total",
		"markethub_marketplace_publishes_total",
		"markethub_queue_backlog",
		"markethub_nsq_topic_depth",
		"markethub_nsq_channel_inflight",
	}

	registeredMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		registeredMetrics[mf.GetName()] = true
	}

	for _, expected := range expectedMetrics {
		if !registeredMetrics[expected] {
			t.Errorf("Expected metric %s not found in registry", expected)
		}
	}
}

func TestRecordStep(t *testing.T) {
	SagaStepsTotal.Reset()

	tests := []struct {
		name    string
		step    string
		outcome string
		calls   int
	}{
		{
			name:    "enhancement ok",
			step:    "enhancement",
			outcome: "ok",
			calls:   1,
		},
		{
			name:    "publishing retry",
			step:    "publishing",
			outcome: "retry",
			calls:   3,
		},
		{
			name:    "webhook fail",
			step:    "webhook",
			outcome: "fail",
			calls:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordStep(tt.step, tt.outcome)
			}

			counter := SagaStepsTotal.WithLabelValues(tt.step, tt.outcome)
			value := testutil.ToFloat64(counter)
			if value != float64(tt.calls) {
				t.Errorf("RecordStep() counter value = %f, want %f", value, float64(tt.calls))
			}
		})
	}
}

func TestRecordStepRetry(t *testing.T) {
	StepRetriesTotal.Reset()

	tests := []struct {
		name   string
		step   string
		reason string
		calls  int
	}{
		{
			name:   "transient enhancement retry",
			step:   "enhancement",
			reason: "transient",
			calls:  1,
		},
		{
			name:   "publishing http_5xx retry",
			step:   "publishing",
			reason: "http_5xx",
			calls:  3,
		},
		{
			name:   "webhook timeout retry",
			step:   "webhook",
			reason: "timeout",
			calls:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordStepRetry(tt.step, tt.reason)
			}

			counter := StepRetriesTotal.WithLabelValues(tt.step, tt.reason)
			value := testutil.ToFloat64(counter)
			if value != float64(tt.calls) {
				t.Errorf("RecordStepRetry() counter value = %f, want %f", value, float64(tt.calls))
			}
		})
	}
}

func TestRecordTaskFinished(t *testing.T) {
	PublicationTasksFinishedTotal.Reset()

	tests := []struct {
		name   string
		status string
		calls  int
	}{
		{
			name:   "completed tasks",
			status: "COMPLETED",
			calls:  4,
		},
		{
			name:   "failed tasks",
			status: "FAILED",
			calls:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordTaskFinished(tt.status)
			}

			counter := PublicationTasksFinishedTotal.WithLabelValues(tt.status)
			value := testutil.ToFloat64(counter)
			if value != float64(tt.calls) {
				t.Errorf("RecordTaskFinished() counter value = %f, want %f", value, float64(tt.calls))
			}
		})
	}
}

func TestRecordWebhookDelivery(t *testing.T) {
	WebhookDeliveriesTotal.Reset()
	WebhookDeliverySeconds.Reset()

	tests := []struct {
		name     string
		status   string
		duration time.Duration
		calls    int
	}{
		{
			name:     "successful delivery",
			status:   "completed",
			duration: 100 * time.Millisecond,
			calls:    1,
		},
		{
			name:     "failed delivery",
			status:   "failed",
			duration: 2 * time.Second,
			calls:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordWebhookDelivery(tt.status, tt.duration)
			}

			counter := WebhookDeliveriesTotal.WithLabelValues(tt.status)
			value := testutil.ToFloat64(counter)
			if value != float64(tt.calls) {
				t.Errorf("RecordWebhookDelivery() counter = %f, want %f", value, float64(tt.calls))
			}

			if WebhookDeliverySeconds.WithLabelValues(tt.status) == nil {
				t.Error("RecordWebhookDelivery() latency histogram should not be nil after recording")
			}
		})
	}
}

func TestRecordEnhancerRequest(t *testing.T) {
	EnhancerRequestsTotal.Reset()

	tests := []struct {
		name    string
		outcome string
		calls   int
	}{
		{
			name:    "provider success",
			outcome: "ok",
			calls:   2,
		},
		{
			name:    "fallback used",
			outcome: "fallback",
			calls:   1,
		},
		{
			name:    "provider error",
			outcome: "error",
			calls:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordEnhancerRequest(tt.outcome)
			}

			counter := EnhancerRequestsTotal.WithLabelValues(tt.outcome)
			value := testutil.ToFloat64(counter)
			if value != float64(tt.calls) {
				t.Errorf("RecordEnhancerRequest() counter value = %f, want %f", value, float64(tt.calls))
			}
		})
	}
}

func TestRecordMarketplacePublish(t *testing.T) {
	MarketplacePublishesTotal.Reset()

	tests := []struct {
		name        string
		marketplace string
		outcome     string
		calls       int
	}{
		{
			name:        "mercadolibre ok",
			marketplace: "mercadolibre",
			outcome:     "ok",
			calls:       1,
		},
		{
			name:        "walmart error",
			marketplace: "walmart",
			outcome:     "error",
			calls:       2,
		},
		{
			name:        "paris ok",
			marketplace: "paris",
			outcome:     "ok",
			calls:       1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordMarketplacePublish(tt.marketplace, tt.outcome)
			}

			counter := MarketplacePublishesTotal.WithLabelValues(tt.marketplace, tt.outcome)
			value := testutil.ToFloat64(counter)
			if value != float64(tt.calls) {
				t.Errorf("RecordMarketplacePublish() counter value = %f, want %f", value, float64(tt.calls))
			}
		})
	}
}

func TestUpdateQueueBacklog(t *testing.T) {
	tests := []struct {
		name  string
		count float64
	}{
		{
			name:  "zero backlog",
			count: 0,
		},
		{
			name:  "positive backlog",
			count: 42,
		},
		{
			name:  "large backlog",
			count: 10000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			UpdateQueueBacklog(tt.count)

			value := testutil.ToFloat64(QueueBacklog)
			if value != tt.count {
				t.Errorf("UpdateQueueBacklog() gauge value = %f, want %f", value, tt.count)
			}
		})
	}
}

func TestUpdateNSQTopicDepth(t *testing.T) {
	NSQTopicDepth.Reset()

	tests := []struct {
		name    string
		topic   string
		channel string
		depth   float64
	}{
		{
			name:    "steps topic",
			topic:   "publication_steps",
			channel: "workers",
			depth:   10,
		},
		{
			name:    "webhook topic",
			topic:   "webhook_deliveries",
			channel: "workers",
			depth:   0,
		},
		{
			name:    "large depth",
			topic:   "webhook_deliveries_dlq",
			channel: "workers",
			depth:   50000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			UpdateNSQTopicDepth(tt.topic, tt.channel, tt.depth)

			gauge := NSQTopicDepth.WithLabelValues(tt.topic, tt.channel)
			value := testutil.ToFloat64(gauge)
			if value != tt.depth {
				t.Errorf("UpdateNSQTopicDepth() gauge value = %f, want %f", value, tt.depth)
			}
		})
	}
}

func TestPrometheusTextOutput(t *testing.T) {
	registry := prometheus.NewRegistry()
	MustRegister(registry)

	// Record some test data
	RecordTaskStarted()
	UpdateQueueBacklog(42)

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Errorf("Registry.Gather() error: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Error("Expected non-empty metrics output")
	}

	// Check that metric names follow expected pattern
	for _, mf := range metricFamilies {
		name := mf.GetName()
		if !strings.HasPrefix(name, "markethub_") {
			t.Errorf("Metric name %s does not have expected prefix 'markethub_'", name)
		}
	}
}
