package queue

import (
	"encoding/json"
	"time"
)

const DLQType = "webhook.dlq"

// DeadLetter is the envelope published to the dead-letter topic when a
// webhook delivery exhausts its attempts.
type DeadLetter struct {
	Type       string          `json:"type"`    // "webhook.dlq"
	Version    string          `json:"version"` // schema version
	At         string          `json:"at"`      // RFC3339 time the DLQ was emitted
	Reason     string          `json:"reason"`  // human/debug text
	Attempt    int             `json:"attempt"` // attempt count when DLQ'd
	HTTPStatus int             `json:"http_status,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	Task       json.RawMessage `json:"task"` // full delivery snapshot
}

func NewDeadLetter(task any, attempt, httpStatus int, lastErr, reason string) DeadLetter {
	snap, err := json.Marshal(task)
	if err != nil {
		snap = json.RawMessage(`null`)
	}
	return DeadLetter{
		Type:       DLQType,
		Version:    "v1",
		At:         time.Now().Format(time.RFC3339Nano),
		Reason:     reason,
		Attempt:    attempt,
		HTTPStatus: httpStatus,
		LastError:  lastErr,
		Task:       snap,
	}
}
