package saga

import (
	"time"

	"github.com/google/uuid"
)

// StepMessage is the queue envelope that drives a task through its steps.
// One message is one attempt of one step; retries ride fresh deferred
// messages so the in-flight message is always finished.
type StepMessage struct {
	TaskID uuid.UUID `json:"task_id"`
	Step   string    `json:"step"`
	// Input threads the previous step's result forward.
	Input *StepResult `json:"input,omitempty"`
	// FailedStep marks a webhook step as a failure notification for the
	// named step.
	FailedStep string `json:"failed_step,omitempty"`
	// WebhookEventID pins webhook retries to the event row created on the
	// first attempt.
	WebhookEventID string            `json:"webhook_event_id,omitempty"`
	TraceHeaders   map[string]string `json:"trace_headers,omitempty"`
}

// StepResult is the value a completed step hands to the next one.
type StepResult struct {
	Success bool      `json:"success"`
	TaskID  uuid.UUID `json:"task_id"`
	Error   string    `json:"error,omitempty"`
}

// OutcomeKind tags how a step attempt ended.
type OutcomeKind string

const (
	// OutcomeOk advances the chain to the next step.
	OutcomeOk OutcomeKind = "ok"
	// OutcomeRetry scheduled another attempt after a backoff.
	OutcomeRetry OutcomeKind = "retry"
	// OutcomeFail settled the step for good.
	OutcomeFail OutcomeKind = "fail"
	// OutcomeSkip dropped a duplicate or stale message without side effects.
	OutcomeSkip OutcomeKind = "skip"
)

// Outcome is the explicit result of a step attempt. Failures and retries
// are values here, never errors thrown past the step boundary.
type Outcome struct {
	Kind   OutcomeKind
	Delay  time.Duration
	Result *StepResult
	Reason string
}
