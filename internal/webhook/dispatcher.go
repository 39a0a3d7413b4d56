package webhook

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/markethub/markethub/internal/config"
	"github.com/markethub/markethub/internal/logging"
	"github.com/markethub/markethub/internal/queue"
	"github.com/markethub/markethub/internal/tracing"
)

// DeliveryMessage is the queue envelope for one asynchronous delivery. The
// event row carries the payload and target; the message only points at it.
type DeliveryMessage struct {
	EventID      string            `json:"event_id"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// Dispatcher records an outbound notification as a pending event and hands
// delivery to the worker. Callers never block on the receiver.
type Dispatcher struct {
	events      EventStore
	producer    queue.Producer
	topic       string
	defaultURL  string
	maxAttempts int
	logger      *logging.Logger
}

func NewDispatcher(events EventStore, producer queue.Producer, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		events:      events,
		producer:    producer,
		topic:       cfg.NSQ.WebhookTopic,
		defaultURL:  cfg.Webhook.DefaultURL,
		maxAttempts: cfg.Webhook.MaxAttempts,
		logger:      logging.New("markethub-webhook"),
	}
}

// ResolveURL picks the delivery target: the per-call override wins, then
// the global default. Empty means no receiver is configured.
func (d *Dispatcher) ResolveURL(override string) string {
	if override != "" {
		return override
	}
	return d.defaultURL
}

// Dispatch creates a pending event for payload and enqueues its delivery.
// When no receiver URL resolves it returns (nil, nil): dispatch is off and
// that is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload map[string]any, urlOverride string) (*Event, error) {
	url := d.ResolveURL(urlOverride)
	if url == "" {
		d.logger.WithContext(ctx).WithField("event_type", eventType).Debug("no webhook url configured, skipping dispatch")
		return nil, nil
	}

	ev := &Event{
		EventType:   eventType,
		Payload:     payload,
		WebhookURL:  url,
		Status:      EventPending,
		MaxAttempts: d.maxAttempts,
	}
	if err := d.events.CreateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("create webhook event: %w", err)
	}
	if err := d.Enqueue(ctx, ev.ID); err != nil {
		return nil, err
	}
	d.logger.WithContext(ctx).WithEvent(ev.ID.String()).WithField("event_type", eventType).Info("webhook event dispatched")
	return ev, nil
}

// Enqueue publishes the delivery message for an existing event row.
func (d *Dispatcher) Enqueue(ctx context.Context, eventID uuid.UUID) error {
	msg := DeliveryMessage{
		EventID:      eventID.String(),
		TraceHeaders: tracing.PropagateTraceToQueue(ctx),
	}
	if err := queue.Enqueue(d.producer, d.topic, msg); err != nil {
		return fmt.Errorf("enqueue webhook delivery: %w", err)
	}
	return nil
}

// Retry requeues a failed event on operator request. Only failed events
// with attempts left qualify. The attempt counter is preserved, the status
// resets to pending.
func (d *Dispatcher) Retry(ctx context.Context, eventID uuid.UUID) (*Event, error) {
	ev, err := d.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status != EventFailed {
		return nil, fmt.Errorf("%w: status %s", ErrNotRetryable, ev.Status)
	}
	if ev.Exhausted() {
		return nil, fmt.Errorf("%w: attempt %d of %d", ErrRetriesExhausted, ev.Attempts, ev.MaxAttempts)
	}
	if err := d.events.MarkEventPending(ctx, ev.ID); err != nil {
		return nil, err
	}
	ev.Status = EventPending
	if err := d.Enqueue(ctx, ev.ID); err != nil {
		return nil, err
	}
	d.logger.WithContext(ctx).WithEvent(ev.ID.String()).Info("webhook event requeued for manual retry")
	return ev, nil
}
