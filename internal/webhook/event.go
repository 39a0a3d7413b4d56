// Package webhook signs and delivers outbound HTTP notifications. Every
// delivery attempt is recorded against a durable WebhookEvent row, and
// failed deliveries retry on a deferred-message ladder before giving up.
package webhook

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Event delivery statuses. Stored lowercase.
const (
	EventPending   = "pending"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// Event types emitted by the publication flow.
const (
	TypeProductEnhanced          = "product.enhanced"
	TypeProductEnhancementFailed = "product.enhancement_failed"
	TypeProductPublished         = "product.published"
	TypeProductPublishFailed     = "product.publish_failed"
	TypeWorkflowCompleted        = "workflow.completed"
	TypeWorkflowError            = "workflow.error"
	TypePublishRetry             = "marketplace.publish.retry"
	TypeMaxRetriesExceeded       = "webhook.max_retries_exceeded"
)

// MaxResponseBody caps how much of a receiver response is stored on the
// event row.
const MaxResponseBody = 1000

// Event is one row of markethub.webhook_events: the audit record of a
// notification and its delivery attempts.
type Event struct {
	ID                 uuid.UUID      `json:"id"`
	EventType          string         `json:"event_type"`
	Payload            map[string]any `json:"payload"`
	WebhookURL         string         `json:"webhook_url"`
	Status             string         `json:"status"`
	ResponseStatusCode *int           `json:"response_status_code"`
	ResponseBody       string         `json:"response_body"`
	Attempts           int            `json:"attempts"`
	MaxAttempts        int            `json:"max_attempts"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Exhausted reports whether the event has no delivery attempts left.
func (e *Event) Exhausted() bool {
	return e.Attempts >= e.MaxAttempts
}

// TruncateBody clips a receiver response to what the event row stores.
// The cut lands on a rune boundary so the stored text stays valid UTF-8.
func TruncateBody(s string) string {
	if len(s) <= MaxResponseBody {
		return s
	}
	cut := MaxResponseBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// EventFilter narrows event listings. Zero values mean no filter; Limit
// defaults to 50 at the store.
type EventFilter struct {
	EventType string
	Status    string
	Limit     int
	Offset    int
}

var (
	// ErrEventNotFound is returned when no event row matches the given id.
	ErrEventNotFound = errors.New("webhook event not found")
	// ErrNotRetryable is returned when a manual retry is requested for an
	// event that is not in the failed state.
	ErrNotRetryable = errors.New("only failed webhook events can be retried")
	// ErrRetriesExhausted is returned when a manual retry is requested for
	// an event with no delivery attempts left.
	ErrRetriesExhausted = errors.New("maximum retry attempts exceeded")
)

// EventStore persists webhook events. Implemented by store.Store and the
// in-memory test double.
type EventStore interface {
	CreateEvent(ctx context.Context, ev *Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	RecordEventAttempt(ctx context.Context, id uuid.UUID, attempts int, status string, httpStatus *int, body string) error
	MarkEventPending(ctx context.Context, id uuid.UUID) error
	ListEvents(ctx context.Context, f EventFilter) ([]*Event, error)
}
