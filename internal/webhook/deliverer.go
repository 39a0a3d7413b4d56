package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/markethub/markethub/internal/config"
	"github.com/markethub/markethub/internal/logging"
	"github.com/markethub/markethub/internal/queue"
	"github.com/markethub/markethub/internal/tracing"
)

// Deliverer executes queued deliveries. Retries ride new deferred messages
// on the delivery topic, so the in-flight NSQ message is always finished by
// the worker after HandleDelivery returns.
type Deliverer struct {
	events     EventStore
	client     *Client
	producer   queue.Producer
	topic      string
	dlqTopic   string
	publishDLQ bool
	backoff    config.Saga
	logger     *logging.Logger
}

func NewDeliverer(events EventStore, client *Client, producer queue.Producer, cfg *config.Config) *Deliverer {
	return &Deliverer{
		events:     events,
		client:     client,
		producer:   producer,
		topic:      cfg.NSQ.WebhookTopic,
		dlqTopic:   cfg.NSQ.DLQTopic,
		publishDLQ: cfg.Worker.PublishDLQ,
		backoff:    cfg.Saga,
		logger:     logging.New("markethub-webhook"),
	}
}

// HandleDelivery runs one delivery attempt for msg. A non-nil return means
// an infrastructure fault the queue should redeliver; delivery failures are
// absorbed into the event row and the deferred retry ladder.
func (dl *Deliverer) HandleDelivery(ctx context.Context, msg DeliveryMessage) error {
	ctx = tracing.ExtractTraceFromQueue(ctx, msg.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "webhook.deliver",
		attribute.String("event_id", msg.EventID),
	)
	defer span.End()

	id, err := uuid.Parse(msg.EventID)
	if err != nil {
		dl.logger.WithContext(ctx).WithField("event_id", msg.EventID).Warn("dropping delivery with bad event id")
		return nil
	}
	ev, err := dl.events.GetEvent(ctx, id)
	if errors.Is(err, ErrEventNotFound) {
		dl.logger.WithContext(ctx).WithEvent(msg.EventID).Warn("dropping delivery for unknown event")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load webhook event: %w", err)
	}
	if ev.Status == EventCompleted || (ev.Status == EventFailed && ev.Exhausted()) {
		// duplicate message for an already settled event
		return nil
	}

	attempts := ev.Attempts + 1
	span.SetAttributes(attribute.Int("attempt", attempts))

	resp, sendErr := dl.client.Send(ctx, ev.WebhookURL, ev.Payload)

	status := EventFailed
	var httpStatus *int
	var body, reason string
	switch {
	case sendErr != nil:
		reason = sendErr.Error()
		body = sendErr.Error()
	case resp.OK():
		status = EventCompleted
		httpStatus = &resp.StatusCode
		body = resp.Body
	default:
		reason = fmt.Sprintf("webhook POST returned status %d", resp.StatusCode)
		httpStatus = &resp.StatusCode
		body = resp.Body
	}

	exhausted := status == EventFailed && attempts >= ev.MaxAttempts
	if exhausted {
		body = "Max retries exceeded: " + reason
	}
	if err := dl.events.RecordEventAttempt(ctx, ev.ID, attempts, status, httpStatus, TruncateBody(body)); err != nil {
		return fmt.Errorf("record delivery attempt: %w", err)
	}

	log := dl.logger.WithContext(ctx).WithEvent(ev.ID.String()).WithField("attempt", attempts)
	switch {
	case status == EventCompleted:
		log.Info("webhook delivered")
	case !exhausted:
		delay := dl.backoff.BackoffFor(attempts)
		retry := DeliveryMessage{EventID: ev.ID.String(), TraceHeaders: tracing.PropagateTraceToQueue(ctx)}
		if err := queue.EnqueueAfter(dl.producer, dl.topic, delay, retry); err != nil {
			return fmt.Errorf("requeue webhook delivery: %w", err)
		}
		log.WithFields(map[string]any{"delay": delay.String(), "reason": reason}).Warn("webhook delivery failed, retry scheduled")
	default:
		tracing.SetSpanError(ctx, errors.New(reason))
		log.WithField("reason", reason).Error("webhook delivery exhausted")
		dl.publishDeadLetter(ctx, ev, attempts, httpStatus, reason)
	}
	return nil
}

// publishDeadLetter emits the exhausted event to the DLQ topic when that
// is enabled. Failures are logged, never propagated: the event row already
// holds the terminal state.
func (dl *Deliverer) publishDeadLetter(ctx context.Context, ev *Event, attempts int, httpStatus *int, lastErr string) {
	if !dl.publishDLQ {
		return
	}
	hs := 0
	if httpStatus != nil {
		hs = *httpStatus
	}
	letter := queue.NewDeadLetter(ev, attempts, hs, lastErr, TypeMaxRetriesExceeded)
	if err := queue.Enqueue(dl.producer, dl.dlqTopic, letter); err != nil {
		dl.logger.WithContext(ctx).WithEvent(ev.ID.String()).WithError(err).Error("dead letter publish failed")
		return
	}
	dl.logger.WithContext(ctx).WithEvent(ev.ID.String()).WithField("topic", dl.dlqTopic).Info("dead letter published")
}
