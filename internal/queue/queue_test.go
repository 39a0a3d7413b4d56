package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
)

type published struct {
	topic string
	delay time.Duration
	body  []byte
}

type fakeProducer struct {
	published  []published
	publishErr error
}

func (f *fakeProducer) Publish(topic string, body []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{topic: topic, body: body})
	return nil
}

func (f *fakeProducer) DeferredPublish(topic string, delay time.Duration, body []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{topic: topic, delay: delay, body: body})
	return nil
}

func TestEnqueue(t *testing.T) {
	tests := []struct {
		name        string
		topic       string
		value       any
		publishErr  error
		expectError bool
		wantBody    string
	}{
		{
			name:     "marshals struct payload",
			topic:    "publication_steps",
			value:    struct{ TaskID string `json:"task_id"` }{TaskID: "task-123"},
			wantBody: `{"task_id":"task-123"}`,
		},
		{
			name:     "marshals map payload",
			topic:    "webhook_deliveries",
			value:    map[string]any{"event_id": "evt-1"},
			wantBody: `{"event_id":"evt-1"}`,
		},
		{
			name:        "unmarshalable payload",
			topic:       "publication_steps",
			value:       map[string]any{"fn": func() {}},
			expectError: true,
		},
		{
			name:        "publish failure",
			topic:       "publication_steps",
			value:       map[string]any{"ok": true},
			publishErr:  errors.New("nsqd unreachable"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProducer{publishErr: tt.publishErr}
			err := Enqueue(p, tt.topic, tt.value)

			if tt.expectError {
				if err == nil {
					t.Fatalf("Enqueue() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Enqueue() unexpected error: %v", err)
			}
			if len(p.published) != 1 {
				t.Fatalf("Enqueue() published %d messages, want 1", len(p.published))
			}
			if got := p.published[0].topic; got != tt.topic {
				t.Errorf("Enqueue() topic = %q, want %q", got, tt.topic)
			}
			if got := string(p.published[0].body); got != tt.wantBody {
				t.Errorf("Enqueue() body = %s, want %s", got, tt.wantBody)
			}
			if p.published[0].delay != 0 {
				t.Errorf("Enqueue() delay = %v, want 0", p.published[0].delay)
			}
		})
	}
}

func TestEnqueueAfter(t *testing.T) {
	tests := []struct {
		name        string
		delay       time.Duration
		value       any
		publishErr  error
		expectError bool
	}{
		{
			name:  "first retry delay",
			delay: 60 * time.Second,
			value: map[string]any{"task_id": "task-1", "step": "enhance_product_listing"},
		},
		{
			name:  "third retry delay",
			delay: 180 * time.Second,
			value: map[string]any{"task_id": "task-1", "step": "publish_to_marketplace"},
		},
		{
			name:        "deferred publish failure",
			delay:       60 * time.Second,
			value:       map[string]any{"task_id": "task-1"},
			publishErr:  errors.New("nsqd unreachable"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProducer{publishErr: tt.publishErr}
			err := EnqueueAfter(p, "publication_steps", tt.delay, tt.value)

			if tt.expectError {
				if err == nil {
					t.Fatalf("EnqueueAfter() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("EnqueueAfter() unexpected error: %v", err)
			}
			if len(p.published) != 1 {
				t.Fatalf("EnqueueAfter() published %d messages, want 1", len(p.published))
			}
			if got := p.published[0].delay; got != tt.delay {
				t.Errorf("EnqueueAfter() delay = %v, want %v", got, tt.delay)
			}
		})
	}
}

func TestNewConsumer(t *testing.T) {
	handler := nsq.HandlerFunc(func(m *nsq.Message) error { return nil })

	tests := []struct {
		name        string
		topic       string
		channel     string
		maxInFlight int
		expectError bool
	}{
		{
			name:        "valid topic and channel",
			topic:       "publication_steps",
			channel:     "workers",
			maxInFlight: 16,
		},
		{
			name:        "zero max in flight keeps nsq default",
			topic:       "webhook_deliveries",
			channel:     "workers",
			maxInFlight: 0,
		},
		{
			name:        "empty topic",
			topic:       "",
			channel:     "workers",
			expectError: true,
		},
		{
			name:        "empty channel",
			topic:       "publication_steps",
			channel:     "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConsumer(tt.topic, tt.channel, tt.maxInFlight, handler)
			if tt.expectError {
				if err == nil {
					t.Fatalf("NewConsumer() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewConsumer() unexpected error: %v", err)
			}
			if c == nil {
				t.Fatalf("NewConsumer() returned nil consumer")
			}
			c.Stop()
		})
	}
}

func TestNewDeadLetter(t *testing.T) {
	tests := []struct {
		name       string
		task       any
		attempt    int
		httpStatus int
		lastErr    string
		reason     string
	}{
		{
			name: "complete dead letter creation",
			task: map[string]any{
				"event_id": "evt-123",
				"trace_headers": map[string]string{
					"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
				},
			},
			attempt:    3,
			httpStatus: 500,
			lastErr:    "connection timeout",
			reason:     "max attempts reached (3)",
		},
		{
			name:       "minimal dead letter creation",
			task:       map[string]any{"event_id": "evt-minimal"},
			attempt:    1,
			httpStatus: 404,
			lastErr:    "not found",
			reason:     "endpoint not found",
		},
		{
			name:       "empty error and reason",
			task:       map[string]any{"event_id": "evt-empty"},
			attempt:    2,
			httpStatus: 0,
			lastErr:    "",
			reason:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			dl := NewDeadLetter(tt.task, tt.attempt, tt.httpStatus, tt.lastErr, tt.reason)
			after := time.Now()

			if dl.Type != DLQType {
				t.Errorf("Type = %q, want %q", dl.Type, DLQType)
			}
			if dl.Version != "v1" {
				t.Errorf("Version = %q, want %q", dl.Version, "v1")
			}
			if dl.Attempt != tt.attempt {
				t.Errorf("Attempt = %d, want %d", dl.Attempt, tt.attempt)
			}
			if dl.HTTPStatus != tt.httpStatus {
				t.Errorf("HTTPStatus = %d, want %d", dl.HTTPStatus, tt.httpStatus)
			}
			if dl.LastError != tt.lastErr {
				t.Errorf("LastError = %q, want %q", dl.LastError, tt.lastErr)
			}
			if dl.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", dl.Reason, tt.reason)
			}

			at, err := time.Parse(time.RFC3339Nano, dl.At)
			if err != nil {
				t.Fatalf("At = %q is not RFC3339Nano: %v", dl.At, err)
			}
			if at.Before(before.Add(-time.Second)) || at.After(after.Add(time.Second)) {
				t.Errorf("At = %v outside creation window [%v, %v]", at, before, after)
			}

			var snap map[string]any
			if err := json.Unmarshal(dl.Task, &snap); err != nil {
				t.Fatalf("Task snapshot is not valid JSON: %v", err)
			}
			want := tt.task.(map[string]any)["event_id"]
			if snap["event_id"] != want {
				t.Errorf("Task snapshot event_id = %v, want %v", snap["event_id"], want)
			}
		})
	}
}

func TestDeadLetter_JSONShape(t *testing.T) {
	dl := NewDeadLetter(map[string]any{"event_id": "evt-1"}, 3, 503, "service unavailable", "max attempts reached (3)")
	b, err := json.Marshal(dl)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	for _, key := range []string{`"type":"webhook.dlq"`, `"version":"v1"`, `"reason"`, `"attempt":3`, `"http_status":503`, `"task"`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("marshaled dead letter missing %s: %s", key, b)
		}
	}
}
