package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StatusNotFound is the snapshot status for unknown task ids. It is a
// query-side value only and never lands on a task row.
const StatusNotFound = "not_found"

// StatusSnapshot is the live view of one task.
type StatusSnapshot struct {
	TaskID             uuid.UUID      `json:"task_id"`
	Status             string         `json:"status"`
	CurrentStep        string         `json:"current_step"`
	ProgressPercentage float64        `json:"progress_percentage"`
	StepsCompleted     []string       `json:"steps_completed"`
	Retries            map[string]int `json:"retries"`
	StartedAt          time.Time      `json:"started_at"`
	CompletedAt        *time.Time     `json:"completed_at"`
	ErrorDetails       string         `json:"error_details,omitempty"`
}

// Status returns the snapshot for one task. Unknown ids come back as a
// snapshot with status "not_found" rather than an error; the query always
// has an answer.
func (e *Engine) Status(ctx context.Context, taskID uuid.UUID) (*StatusSnapshot, error) {
	task, err := e.tasks.GetTask(ctx, taskID)
	if errors.Is(err, ErrTaskNotFound) {
		return &StatusSnapshot{
			TaskID:         taskID,
			Status:         StatusNotFound,
			StepsCompleted: []string{},
			Retries:        map[string]int{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	snap := &StatusSnapshot{
		TaskID:             task.TaskID,
		Status:             string(task.Status),
		CurrentStep:        task.CurrentStep,
		ProgressPercentage: task.Progress(e.cfg.Saga.TotalSteps),
		StepsCompleted:     stepsOrEmpty(task.StepsCompleted),
		Retries:            task.Retries(),
		StartedAt:          task.StartedAt,
		CompletedAt:        task.CompletedAt,
	}
	// Mid-retry failures are working state, not an outcome; the error
	// surfaces only once the task has actually failed.
	if task.Status == StatusFailed {
		snap.ErrorDetails = task.ErrorDetails
	}
	return snap, nil
}

// TaskView is one task in the product summary listing, joined with the
// product and marketplace names the caller would otherwise look up.
type TaskView struct {
	TaskID             uuid.UUID      `json:"task_id"`
	ProductID          uuid.UUID      `json:"product_id"`
	MarketplaceID      uuid.UUID      `json:"marketplace_id"`
	Status             string         `json:"status"`
	CurrentStep        string         `json:"current_step"`
	StepsCompleted     []string       `json:"steps_completed"`
	TotalSteps         int            `json:"total_steps"`
	ProgressPercentage float64        `json:"progress_percentage"`
	EnhancementRetries int            `json:"enhancement_retries"`
	PublicationRetries int            `json:"publication_retries"`
	WebhookRetries     int            `json:"webhook_retries"`
	EnhancementResult  map[string]any `json:"enhancement_result"`
	PublicationResult  map[string]any `json:"publication_result"`
	WebhookResult      map[string]any `json:"webhook_result"`
	ErrorDetails       string         `json:"error_details,omitempty"`
	StartedAt          time.Time      `json:"started_at"`
	CompletedAt        *time.Time     `json:"completed_at"`
	ProductTitle       string         `json:"product_title"`
	ProductSKU         string         `json:"product_sku"`
	MarketplaceName    string         `json:"marketplace_name"`
}

// Summary is the product-level task listing with rollup counts. The
// rollups cover every task of the product regardless of the filter; they
// are omitted when the filtered listing is empty.
type Summary struct {
	ProductID          uuid.UUID      `json:"product_id"`
	ProductTitle       string         `json:"product_title"`
	ProductSKU         string         `json:"product_sku"`
	TotalTasks         int            `json:"total_tasks"`
	Showing            int            `json:"showing"`
	Offset             int            `json:"offset"`
	Limit              int            `json:"limit"`
	HasMore            bool           `json:"has_more"`
	Tasks              []TaskView     `json:"tasks"`
	StatusSummary      map[string]int `json:"status_summary,omitempty"`
	MarketplaceSummary map[string]int `json:"marketplace_summary,omitempty"`
}

// ProductSummary lists a product's tasks newest first. product.ErrNotFound
// and marketplace.ErrNotFound pass through for callers to map.
func (e *Engine) ProductSummary(ctx context.Context, productID uuid.UUID, f TaskFilter) (*Summary, error) {
	p, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if f.MarketplaceID != uuid.Nil {
		if _, err := e.catalog.GetMarketplace(ctx, f.MarketplaceID); err != nil {
			return nil, err
		}
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	tasks, total, err := e.tasks.ListTasksByProduct(ctx, productID, f)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	names := map[uuid.UUID]string{}
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		name, ok := names[t.MarketplaceID]
		if !ok {
			name = t.MarketplaceID.String()
			if mp, err := e.catalog.GetMarketplace(ctx, t.MarketplaceID); err == nil {
				name = mp.Name
			}
			names[t.MarketplaceID] = name
		}
		views = append(views, TaskView{
			TaskID:             t.TaskID,
			ProductID:          t.ProductID,
			MarketplaceID:      t.MarketplaceID,
			Status:             string(t.Status),
			CurrentStep:        t.CurrentStep,
			StepsCompleted:     stepsOrEmpty(t.StepsCompleted),
			TotalSteps:         e.cfg.Saga.TotalSteps,
			ProgressPercentage: t.Progress(e.cfg.Saga.TotalSteps),
			EnhancementRetries: t.EnhancementRetries,
			PublicationRetries: t.PublicationRetries,
			WebhookRetries:     t.WebhookRetries,
			EnhancementResult:  t.EnhancementResult,
			PublicationResult:  t.PublicationResult,
			WebhookResult:      t.WebhookResult,
			ErrorDetails:       t.ErrorDetails,
			StartedAt:          t.StartedAt,
			CompletedAt:        t.CompletedAt,
			ProductTitle:       p.Title,
			ProductSKU:         p.SKU,
			MarketplaceName:    name,
		})
	}

	out := &Summary{
		ProductID:    productID,
		ProductTitle: p.Title,
		ProductSKU:   p.SKU,
		TotalTasks:   total,
		Showing:      len(views),
		Offset:       f.Offset,
		Limit:        f.Limit,
		HasMore:      f.Offset+f.Limit < total,
		Tasks:        views,
	}
	if total > 0 {
		statusCounts, err := e.tasks.TaskCountsByStatus(ctx, productID, TaskFilter{})
		if err != nil {
			return nil, fmt.Errorf("status counts: %w", err)
		}
		marketplaceCounts, err := e.tasks.TaskCountsByMarketplace(ctx, productID, TaskFilter{})
		if err != nil {
			return nil, fmt.Errorf("marketplace counts: %w", err)
		}
		out.StatusSummary = statusCounts
		out.MarketplaceSummary = marketplaceCounts
	}
	return out, nil
}

func stepsOrEmpty(steps []string) []string {
	if steps == nil {
		return []string{}
	}
	return steps
}
