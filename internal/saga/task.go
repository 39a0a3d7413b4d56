// Package saga drives the multi-step publication workflow: AI enhancement,
// marketplace publication, webhook notification. Each step runs as an NSQ
// message; retries ride new deferred messages rather than NSQ requeues, so
// the retry ladder stays visible in the task row.
package saga

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/markethub/markethub/internal/marketplace"
	"github.com/markethub/markethub/internal/product"
)

// Status is the lifecycle state of a publication task. Values are stored
// and serialized lowercase.
type Status string

const (
	StatusPending     Status = "pending"
	StatusEnhancing   Status = "enhancing"
	StatusEnhanced    Status = "enhanced"
	StatusPublishing  Status = "publishing"
	StatusPublished   Status = "published"
	StatusWebhookSent Status = "webhook_sent"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// statusRank orders the pipeline. Tasks only move forward; failed is
// reachable from any non-terminal state.
var statusRank = map[Status]int{
	StatusPending:     0,
	StatusEnhancing:   1,
	StatusEnhanced:    2,
	StatusPublishing:  3,
	StatusPublished:   4,
	StatusWebhookSent: 5,
	StatusCompleted:   6,
	StatusFailed:      7,
}

// Terminal reports whether the task has reached a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvanceTo reports whether moving to next keeps the pipeline forward
// only. Re-running a step sets the same status again, so equal rank is
// allowed.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return statusRank[next] >= statusRank[s]
}

// Step names. They key the per-step retry counters and the steps_completed
// list, and appear in webhook failure payloads as failed_step.
const (
	StepEnhancement = "enhancement"
	StepPublication = "publication"
	StepWebhook     = "webhook"
)

// Task is one row of markethub.publication_tasks: the durable record of a
// saga run for a single product/marketplace pair.
type Task struct {
	ID                 uuid.UUID
	TaskID             uuid.UUID
	ProductID          uuid.UUID
	MarketplaceID      uuid.UUID
	Status             Status
	CurrentStep        string
	EnhancementRetries int
	PublicationRetries int
	WebhookRetries     int
	MaxRetries         int
	EnhancementResult  map[string]any
	PublicationResult  map[string]any
	WebhookResult      map[string]any
	StepsCompleted     []string
	ErrorDetails       string
	StartedAt          time.Time
	CompletedAt        *time.Time
	UpdatedAt          time.Time
}

// Progress maps completed steps onto a percentage. The denominator counts a
// finalization phase that never lands in steps_completed, so a fully
// successful run reports 75, not 100.
func (t *Task) Progress(totalSteps int) float64 {
	if totalSteps <= 0 {
		totalSteps = 4
	}
	return float64(len(t.StepsCompleted)) / float64(totalSteps) * 100
}

// StepCompleted reports whether step already appears in steps_completed.
func (t *Task) StepCompleted(step string) bool {
	for _, s := range t.StepsCompleted {
		if s == step {
			return true
		}
	}
	return false
}

// Retries returns the per-step retry counters in the wire shape shared by
// status responses and webhook payloads.
func (t *Task) Retries() map[string]int {
	return map[string]int{
		"enhancement_retries": t.EnhancementRetries,
		"publication_retries": t.PublicationRetries,
		"webhook_retries":     t.WebhookRetries,
	}
}

// TaskFilter narrows task listings. Zero values mean no filter; Limit
// defaults to 50 at the store.
type TaskFilter struct {
	Status        string
	MarketplaceID uuid.UUID
	Limit         int
	Offset        int
}

var (
	// ErrTaskNotFound is returned when no task row matches the given id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskFinalized is returned when an update would move a task out of
	// a terminal status.
	ErrTaskFinalized = errors.New("task already finalized")
)

// TaskStore persists publication tasks. Implemented by store.Store and the
// in-memory test double.
type TaskStore interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error)
	SetTaskStatus(ctx context.Context, taskID uuid.UUID, status Status, currentStep string) error
	AppendTaskStep(ctx context.Context, taskID uuid.UUID, step string) error
	SetTaskStepResult(ctx context.Context, taskID uuid.UUID, step string, result map[string]any) error
	IncrementTaskRetry(ctx context.Context, taskID uuid.UUID, step string) (int, error)
	SetTaskError(ctx context.Context, taskID uuid.UUID, details string) error
	MarkTaskFailed(ctx context.Context, taskID uuid.UUID, currentStep, details string) error
	MarkTaskCompleted(ctx context.Context, taskID uuid.UUID, currentStep string) error
	ListTasksByProduct(ctx context.Context, productID uuid.UUID, f TaskFilter) ([]*Task, int, error)
	TaskCountsByStatus(ctx context.Context, productID uuid.UUID, f TaskFilter) (map[string]int, error)
	TaskCountsByMarketplace(ctx context.Context, productID uuid.UUID, f TaskFilter) (map[string]int, error)
}

// Catalog exposes the product and marketplace rows the saga reads and the
// listing rows it maintains.
type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*product.Product, error)
	UpdateProductEnhancement(ctx context.Context, id uuid.UUID, aiDescription string, keywords []string) error
	GetMarketplace(ctx context.Context, id uuid.UUID) (*marketplace.Marketplace, error)
	GetCredentials(ctx context.Context, marketplaceID uuid.UUID) (*marketplace.Credentials, error)
	GetOrCreateListing(ctx context.Context, productID, marketplaceID uuid.UUID) (*marketplace.Listing, error)
	SetListingStatus(ctx context.Context, id uuid.UUID, status string) error
	CompleteListing(ctx context.Context, id uuid.UUID, externalID string) error
}
