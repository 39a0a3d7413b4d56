package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/markethub/markethub/internal/config"
	"github.com/markethub/markethub/internal/enhancer"
	"github.com/markethub/markethub/internal/logging"
	"github.com/markethub/markethub/internal/marketplace"
	"github.com/markethub/markethub/internal/metrics"
	"github.com/markethub/markethub/internal/product"
	"github.com/markethub/markethub/internal/queue"
	"github.com/markethub/markethub/internal/tracing"
	"github.com/markethub/markethub/internal/webhook"
)

// Enhancer produces marketing copy for a product. Implemented by
// enhancer.Client.
type Enhancer interface {
	EnhanceProduct(ctx context.Context, p *product.Product) (*enhancer.Enhancement, error)
}

// Publisher pushes a product to one marketplace. Implemented by
// marketplace.Service.
type Publisher interface {
	PublishProduct(ctx context.Context, p *product.Product, mp *marketplace.Marketplace, creds *marketplace.Credentials) *marketplace.Result
}

// Deps collects the engine's collaborators.
type Deps struct {
	Tasks     TaskStore
	Catalog   Catalog
	Events    webhook.EventStore
	Enhancer  Enhancer
	Publisher Publisher
	Webhooks  *webhook.Client
	Producer  queue.Producer
}

// Engine drives publication tasks through their steps. It owns no
// goroutines: the API calls Create and the query methods, the worker feeds
// HandleStep from the steps topic.
type Engine struct {
	tasks     TaskStore
	catalog   Catalog
	events    webhook.EventStore
	enhancer  Enhancer
	publisher Publisher
	webhooks  *webhook.Client
	producer  queue.Producer
	cfg       *config.Config
	logger    *logging.Logger
}

func NewEngine(d Deps, cfg *config.Config) *Engine {
	return &Engine{
		tasks:     d.Tasks,
		catalog:   d.Catalog,
		events:    d.Events,
		enhancer:  d.Enhancer,
		publisher: d.Publisher,
		webhooks:  d.Webhooks,
		producer:  d.Producer,
		cfg:       cfg,
		logger:    logging.New("markethub-saga"),
	}
}

// nextStep orders the chain. Steps with no successor end it.
var nextStep = map[string]string{
	StepEnhancement: StepPublication,
	StepPublication: StepWebhook,
}

// CreateResult is the acknowledgment returned when a task is accepted.
type CreateResult struct {
	TaskID          uuid.UUID `json:"task_id"`
	Status          string    `json:"status"`
	Message         string    `json:"message"`
	ProductID       uuid.UUID `json:"product_id"`
	MarketplaceID   uuid.UUID `json:"marketplace_id"`
	ProductTitle    string    `json:"product_title"`
	MarketplaceName string    `json:"marketplace_name"`
}

// Create validates the product/marketplace pair, records a pending task,
// and enqueues the first step. product.ErrNotFound and
// marketplace.ErrNotFound pass through for callers to map.
func (e *Engine) Create(ctx context.Context, productID, marketplaceID uuid.UUID) (*CreateResult, error) {
	ctx, span := tracing.StartSpan(ctx, "saga.create",
		attribute.String("product_id", productID.String()),
		attribute.String("marketplace_id", marketplaceID.String()),
	)
	defer span.End()

	p, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	mp, err := e.catalog.GetMarketplace(ctx, marketplaceID)
	if err != nil {
		return nil, err
	}

	task := &Task{
		TaskID:        uuid.New(),
		ProductID:     productID,
		MarketplaceID: marketplaceID,
		Status:        StatusPending,
		MaxRetries:    e.cfg.Saga.MaxStepRetries,
	}
	if err := e.tasks.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create publication task: %w", err)
	}

	msg := StepMessage{
		TaskID:       task.TaskID,
		Step:         StepEnhancement,
		TraceHeaders: tracing.PropagateTraceToQueue(ctx),
	}
	if err := queue.Enqueue(e.producer, e.cfg.NSQ.StepsTopic, msg); err != nil {
		// The row exists but nothing will drive it. Fail it so status
		// queries tell the truth.
		if ferr := e.tasks.MarkTaskFailed(ctx, task.TaskID, "enqueue failed", fmt.Sprintf("could not enqueue enhancement step: %v", err)); ferr != nil {
			e.logger.WithContext(ctx).WithTask(task.TaskID.String()).WithError(ferr).Error("orphaned task could not be failed")
		}
		return nil, fmt.Errorf("enqueue enhancement step: %w", err)
	}

	metrics.RecordTaskStarted()
	e.logger.WithContext(ctx).
		WithTask(task.TaskID.String()).
		WithProduct(productID.String()).
		WithMarketplace(mp.Slug).
		Info("publication task created")

	return &CreateResult{
		TaskID:          task.TaskID,
		Status:          "processing",
		Message:         "Async publication process started",
		ProductID:       productID,
		MarketplaceID:   marketplaceID,
		ProductTitle:    p.Title,
		MarketplaceName: mp.Name,
	}, nil
}

// HandleStep executes one step attempt. A non-nil return is an
// infrastructure fault the queue should redeliver; step failures come back
// as Retry or Fail outcomes that this method has already acted on.
func (e *Engine) HandleStep(ctx context.Context, msg StepMessage) error {
	ctx = tracing.ExtractTraceFromQueue(ctx, msg.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "saga.step",
		attribute.String("task_id", msg.TaskID.String()),
		attribute.String("step", msg.Step),
	)
	defer span.End()

	task, err := e.tasks.GetTask(ctx, msg.TaskID)
	if errors.Is(err, ErrTaskNotFound) {
		e.logger.WithContext(ctx).WithTask(msg.TaskID.String()).Warn("dropping step for unknown task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}

	var out Outcome
	switch msg.Step {
	case StepEnhancement:
		out, err = e.runEnhancement(ctx, task, msg)
	case StepPublication:
		out, err = e.runPublication(ctx, task, msg)
	case StepWebhook:
		out, err = e.runWebhook(ctx, task, msg)
	default:
		e.logger.WithContext(ctx).WithTask(task.TaskID.String()).WithStep(msg.Step).Error("dropping message for unknown step")
		return nil
	}
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return err
	}

	if out.Kind != OutcomeSkip {
		metrics.RecordStep(msg.Step, string(out.Kind))
	}

	log := e.logger.WithContext(ctx).WithTask(task.TaskID.String()).WithStep(msg.Step)
	switch out.Kind {
	case OutcomeOk:
		if next := nextStep[msg.Step]; next != "" {
			nm := StepMessage{
				TaskID:       task.TaskID,
				Step:         next,
				Input:        out.Result,
				TraceHeaders: tracing.PropagateTraceToQueue(ctx),
			}
			if err := queue.Enqueue(e.producer, e.cfg.NSQ.StepsTopic, nm); err != nil {
				tracing.SetSpanError(ctx, err)
				return fmt.Errorf("enqueue %s step: %w", next, err)
			}
		}
		log.Info("step completed")
	case OutcomeRetry:
		log.WithField("delay", out.Delay.String()).WithField("reason", out.Reason).Warn("step retry scheduled")
	case OutcomeFail:
		log.WithField("reason", out.Reason).Error("step failed")
	case OutcomeSkip:
		log.WithField("reason", out.Reason).Debug("step skipped")
	}
	return nil
}

func (e *Engine) runEnhancement(ctx context.Context, task *Task, msg StepMessage) (Outcome, error) {
	if task.Status.Terminal() {
		return Outcome{Kind: OutcomeSkip, Reason: "task already terminal"}, nil
	}
	if task.StepCompleted(StepEnhancement) {
		// Duplicate delivery after the step already landed. Returning Ok
		// re-enqueues the next step, which heals a crash between
		// bookkeeping and enqueue.
		return Outcome{Kind: OutcomeOk, Result: &StepResult{Success: true, TaskID: task.TaskID}}, nil
	}

	if err := e.tasks.SetTaskStatus(ctx, task.TaskID, StatusEnhancing, "AI enhancement in progress"); err != nil {
		if errors.Is(err, ErrTaskFinalized) {
			return Outcome{Kind: OutcomeSkip, Reason: "task finalized concurrently"}, nil
		}
		return Outcome{}, fmt.Errorf("set task status: %w", err)
	}

	p, err := e.catalog.GetProduct(ctx, task.ProductID)
	if errors.Is(err, product.ErrNotFound) {
		return e.failStep(ctx, task, StepEnhancement, fmt.Sprintf("product %s not found", task.ProductID))
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load product: %w", err)
	}

	enh, err := e.enhancer.EnhanceProduct(ctx, p)
	if err != nil {
		return e.retryOrFail(ctx, task, msg, StepEnhancement, err.Error())
	}

	if err := e.catalog.UpdateProductEnhancement(ctx, p.ID, enh.Description, enh.Keywords); err != nil {
		return Outcome{}, fmt.Errorf("persist enhancement: %w", err)
	}

	result := map[string]any{
		"success":              true,
		"enhanced_description": enh.Description,
		"keywords":             enh.Keywords,
	}
	if err := e.tasks.SetTaskStepResult(ctx, task.TaskID, StepEnhancement, result); err != nil {
		return Outcome{}, fmt.Errorf("store enhancement result: %w", err)
	}
	if err := e.tasks.AppendTaskStep(ctx, task.TaskID, StepEnhancement); err != nil {
		return Outcome{}, fmt.Errorf("append enhancement step: %w", err)
	}
	if err := e.tasks.SetTaskStatus(ctx, task.TaskID, StatusEnhanced, "AI enhancement completed"); err != nil && !errors.Is(err, ErrTaskFinalized) {
		return Outcome{}, fmt.Errorf("set task status: %w", err)
	}
	return Outcome{Kind: OutcomeOk, Result: &StepResult{Success: true, TaskID: task.TaskID}}, nil
}

func (e *Engine) runPublication(ctx context.Context, task *Task, msg StepMessage) (Outcome, error) {
	if task.Status.Terminal() {
		return Outcome{Kind: OutcomeSkip, Reason: "task already terminal"}, nil
	}
	if task.StepCompleted(StepPublication) {
		return Outcome{Kind: OutcomeOk, Result: &StepResult{Success: true, TaskID: task.TaskID}}, nil
	}
	if msg.Input != nil && !msg.Input.Success {
		// The failing step already settled the task; never publish on a
		// failed input.
		reason := "upstream step failed"
		if msg.Input.Error != "" {
			reason = fmt.Sprintf("upstream step failed: %s", msg.Input.Error)
		}
		return Outcome{Kind: OutcomeFail, Reason: reason}, nil
	}

	if err := e.tasks.SetTaskStatus(ctx, task.TaskID, StatusPublishing, "Publishing to marketplace"); err != nil {
		if errors.Is(err, ErrTaskFinalized) {
			return Outcome{Kind: OutcomeSkip, Reason: "task finalized concurrently"}, nil
		}
		return Outcome{}, fmt.Errorf("set task status: %w", err)
	}

	p, err := e.catalog.GetProduct(ctx, task.ProductID)
	if errors.Is(err, product.ErrNotFound) {
		return e.failStep(ctx, task, StepPublication, fmt.Sprintf("product %s not found", task.ProductID))
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load product: %w", err)
	}

	// Publishing an unenhanced product is an ordering violation, not a
	// flaky upstream: fail at once without spending a retry.
	if !p.AIEnhanced {
		details := fmt.Sprintf("%s: %s", ErrCodeAIEnhancementMissing, msgAIEnhancementRequired)
		return e.failStep(ctx, task, StepPublication, details)
	}

	mp, err := e.catalog.GetMarketplace(ctx, task.MarketplaceID)
	if errors.Is(err, marketplace.ErrNotFound) {
		return e.failStep(ctx, task, StepPublication, fmt.Sprintf("marketplace %s not found", task.MarketplaceID))
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load marketplace: %w", err)
	}

	listing, err := e.catalog.GetOrCreateListing(ctx, task.ProductID, task.MarketplaceID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get or create listing: %w", err)
	}
	if err := e.catalog.SetListingStatus(ctx, listing.ID, marketplace.ListingProcessing); err != nil {
		return Outcome{}, fmt.Errorf("mark listing processing: %w", err)
	}

	creds, err := e.catalog.GetCredentials(ctx, task.MarketplaceID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load credentials: %w", err)
	}

	result := e.publisher.PublishProduct(ctx, p, mp, creds)
	if !result.Success {
		if err := e.catalog.SetListingStatus(ctx, listing.ID, marketplace.ListingFailed); err != nil {
			e.logger.WithContext(ctx).WithTask(task.TaskID.String()).WithError(err).Warn("listing status update failed")
		}
		if Classify(result.Error).Retryable() {
			return e.retryOrFail(ctx, task, msg, StepPublication, result.Error)
		}
		return e.failStep(ctx, task, StepPublication, result.Error)
	}

	if err := e.catalog.CompleteListing(ctx, listing.ID, result.MarketplaceID); err != nil {
		return Outcome{}, fmt.Errorf("complete listing: %w", err)
	}
	if err := e.tasks.SetTaskStepResult(ctx, task.TaskID, StepPublication, resultMap(result)); err != nil {
		return Outcome{}, fmt.Errorf("store publication result: %w", err)
	}
	if err := e.tasks.AppendTaskStep(ctx, task.TaskID, StepPublication); err != nil {
		return Outcome{}, fmt.Errorf("append publication step: %w", err)
	}
	if err := e.tasks.SetTaskStatus(ctx, task.TaskID, StatusPublished, "Marketplace publication completed"); err != nil && !errors.Is(err, ErrTaskFinalized) {
		return Outcome{}, fmt.Errorf("set task status: %w", err)
	}
	return Outcome{Kind: OutcomeOk, Result: &StepResult{Success: true, TaskID: task.TaskID}}, nil
}

func (e *Engine) runWebhook(ctx context.Context, task *Task, msg StepMessage) (Outcome, error) {
	if task.Status == StatusCompleted {
		return Outcome{Kind: OutcomeSkip, Reason: "task already completed"}, nil
	}
	// A failure notification runs against a task that is already failed;
	// anything else arriving on a failed task is a stale duplicate.
	if task.Status == StatusFailed && msg.FailedStep == "" {
		return Outcome{Kind: OutcomeSkip, Reason: "task already terminal"}, nil
	}

	url, err := e.webhookURL(ctx, task)
	if err != nil {
		return Outcome{}, err
	}
	if url == "" {
		note := map[string]any{"skipped": true, "reason": "no webhook url configured"}
		if err := e.tasks.SetTaskStepResult(ctx, task.TaskID, StepWebhook, note); err != nil {
			return Outcome{}, fmt.Errorf("store webhook result: %w", err)
		}
		if msg.FailedStep != "" {
			return Outcome{Kind: OutcomeSkip, Reason: "no webhook url configured"}, nil
		}
		out, err := e.completeTask(ctx, task)
		if err != nil {
			return Outcome{}, err
		}
		if out.Kind == OutcomeSkip {
			return out, nil
		}
		return Outcome{Kind: OutcomeSkip, Reason: "no webhook url configured"}, nil
	}

	eventType := webhook.TypeWorkflowCompleted
	if msg.FailedStep != "" {
		eventType = webhook.TypeWorkflowError
	}
	ev, err := e.loadOrCreateEvent(ctx, msg, eventType, e.webhookPayload(task, msg.FailedStep), url)
	if err != nil {
		return Outcome{}, err
	}

	// Settled event rows mean a previous attempt crashed between delivery
	// and task bookkeeping. Finish the bookkeeping without another POST.
	if ev.Status == webhook.EventCompleted {
		return e.settleWebhookStep(ctx, task, msg, ev, true)
	}
	if ev.Status == webhook.EventFailed && ev.Exhausted() {
		return e.settleWebhookStep(ctx, task, msg, ev, false)
	}

	attempts := ev.Attempts + 1
	resp, sendErr := e.webhooks.Send(ctx, ev.WebhookURL, ev.Payload)

	if sendErr == nil && resp.OK() {
		code := resp.StatusCode
		if err := e.events.RecordEventAttempt(ctx, ev.ID, attempts, webhook.EventCompleted, &code, webhook.TruncateBody(resp.Body)); err != nil {
			return Outcome{}, fmt.Errorf("record webhook attempt: %w", err)
		}
		ev.Attempts = attempts
		ev.Status = webhook.EventCompleted
		ev.ResponseStatusCode = &code
		return e.settleWebhookStep(ctx, task, msg, ev, true)
	}

	var httpStatus *int
	var reason, body string
	if sendErr != nil {
		reason = sendErr.Error()
		body = reason
	} else {
		reason = fmt.Sprintf("webhook POST returned status %d", resp.StatusCode)
		code := resp.StatusCode
		httpStatus = &code
		body = resp.Body
	}

	retries, err := e.tasks.IncrementTaskRetry(ctx, task.TaskID, StepWebhook)
	if err != nil {
		return Outcome{}, fmt.Errorf("increment webhook retries: %w", err)
	}

	if retries < e.cfg.Saga.MaxStepRetries {
		if err := e.events.RecordEventAttempt(ctx, ev.ID, attempts, webhook.EventFailed, httpStatus, webhook.TruncateBody(body)); err != nil {
			return Outcome{}, fmt.Errorf("record webhook attempt: %w", err)
		}
		delay := e.cfg.Saga.BackoffFor(retries)
		retry := msg
		retry.Input = nil
		retry.WebhookEventID = ev.ID.String()
		retry.TraceHeaders = tracing.PropagateTraceToQueue(ctx)
		if err := queue.EnqueueAfter(e.producer, e.cfg.NSQ.StepsTopic, delay, retry); err != nil {
			return Outcome{}, fmt.Errorf("enqueue webhook retry: %w", err)
		}
		metrics.RecordStepRetry(StepWebhook, string(Classify(reason)))
		return Outcome{Kind: OutcomeRetry, Delay: delay, Reason: reason}, nil
	}

	final := webhook.TruncateBody("Max retries exceeded: " + reason)
	if err := e.events.RecordEventAttempt(ctx, ev.ID, attempts, webhook.EventFailed, httpStatus, final); err != nil {
		return Outcome{}, fmt.Errorf("record webhook attempt: %w", err)
	}
	ev.Attempts = attempts
	ev.Status = webhook.EventFailed
	ev.ResponseBody = final
	return e.settleWebhookStep(ctx, task, msg, ev, false)
}

// settleWebhookStep writes the step bookkeeping once the event row is
// settled, then closes out the workflow.
func (e *Engine) settleWebhookStep(ctx context.Context, task *Task, msg StepMessage, ev *webhook.Event, delivered bool) (Outcome, error) {
	var result map[string]any
	if delivered {
		result = map[string]any{
			"success":     true,
			"event_id":    ev.ID.String(),
			"attempts":    ev.Attempts,
			"webhook_url": ev.WebhookURL,
		}
		if ev.ResponseStatusCode != nil {
			result["status_code"] = *ev.ResponseStatusCode
		}
	} else {
		result = map[string]any{
			"success":  false,
			"event_id": ev.ID.String(),
			"attempts": ev.Attempts,
			"error":    ev.ResponseBody,
		}
	}
	if err := e.tasks.SetTaskStepResult(ctx, task.TaskID, StepWebhook, result); err != nil {
		return Outcome{}, fmt.Errorf("store webhook result: %w", err)
	}

	if msg.FailedStep != "" {
		// Failure notification: the task stays failed.
		if delivered {
			return Outcome{Kind: OutcomeOk}, nil
		}
		return Outcome{Kind: OutcomeFail, Reason: ev.ResponseBody}, nil
	}

	if delivered {
		if err := e.tasks.AppendTaskStep(ctx, task.TaskID, StepWebhook); err != nil {
			return Outcome{}, fmt.Errorf("append webhook step: %w", err)
		}
		if err := e.tasks.SetTaskStatus(ctx, task.TaskID, StatusWebhookSent, "Webhook notification sent"); err != nil && !errors.Is(err, ErrTaskFinalized) {
			return Outcome{}, fmt.Errorf("set task status: %w", err)
		}
		return e.completeTask(ctx, task)
	}

	// Delivery exhausted its attempts. The notification is best effort and
	// the workflow still completes.
	out, err := e.completeTask(ctx, task)
	if err != nil {
		return Outcome{}, err
	}
	if out.Kind == OutcomeSkip {
		return out, nil
	}
	return Outcome{Kind: OutcomeFail, Reason: ev.ResponseBody}, nil
}

// retryOrFail increments the step's retry counter, then either schedules
// the next attempt after the linear backoff or fails the task when the
// ceiling is reached.
func (e *Engine) retryOrFail(ctx context.Context, task *Task, msg StepMessage, step, reason string) (Outcome, error) {
	retries, err := e.tasks.IncrementTaskRetry(ctx, task.TaskID, step)
	if err != nil {
		return Outcome{}, fmt.Errorf("increment %s retries: %w", step, err)
	}

	if retries < e.cfg.Saga.MaxStepRetries {
		details := fmt.Sprintf("%s attempt %d/%d failed: %s", step, retries, e.cfg.Saga.MaxStepRetries, reason)
		if err := e.tasks.SetTaskError(ctx, task.TaskID, details); err != nil {
			return Outcome{}, fmt.Errorf("record step error: %w", err)
		}
		delay := e.cfg.Saga.BackoffFor(retries)
		retry := msg
		retry.Input = nil
		retry.TraceHeaders = tracing.PropagateTraceToQueue(ctx)
		if err := queue.EnqueueAfter(e.producer, e.cfg.NSQ.StepsTopic, delay, retry); err != nil {
			return Outcome{}, fmt.Errorf("enqueue %s retry: %w", step, err)
		}
		metrics.RecordStepRetry(step, string(Classify(reason)))
		return Outcome{Kind: OutcomeRetry, Delay: delay, Reason: reason}, nil
	}

	details := fmt.Sprintf("%s failed after %d attempts: %s", step, retries, reason)
	return e.failStep(ctx, task, step, details)
}

// failStep marks the task failed and queues the failure notification. The
// notification is best effort: losing it never resurrects the step.
func (e *Engine) failStep(ctx context.Context, task *Task, step, details string) (Outcome, error) {
	err := e.tasks.MarkTaskFailed(ctx, task.TaskID, step+" failed", details)
	if errors.Is(err, ErrTaskFinalized) {
		return Outcome{Kind: OutcomeSkip, Reason: "task finalized concurrently"}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("mark task failed: %w", err)
	}
	metrics.RecordTaskFinished(string(StatusFailed))

	notify := StepMessage{
		TaskID:       task.TaskID,
		Step:         StepWebhook,
		FailedStep:   step,
		TraceHeaders: tracing.PropagateTraceToQueue(ctx),
	}
	if err := queue.Enqueue(e.producer, e.cfg.NSQ.StepsTopic, notify); err != nil {
		e.logger.WithContext(ctx).WithTask(task.TaskID.String()).WithError(err).Error("failure notification enqueue failed")
	}
	return Outcome{Kind: OutcomeFail, Reason: details}, nil
}

// completeTask closes out the workflow. A task already finalized by a
// concurrent attempt is not an error.
func (e *Engine) completeTask(ctx context.Context, task *Task) (Outcome, error) {
	err := e.tasks.MarkTaskCompleted(ctx, task.TaskID, "Workflow completed")
	if errors.Is(err, ErrTaskFinalized) {
		return Outcome{Kind: OutcomeSkip, Reason: "task finalized concurrently"}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("mark task completed: %w", err)
	}
	metrics.RecordTaskFinished(string(StatusCompleted))
	return Outcome{Kind: OutcomeOk}, nil
}

// webhookURL resolves the notification target: the marketplace override
// when set, otherwise the global default. Empty means skip delivery.
func (e *Engine) webhookURL(ctx context.Context, task *Task) (string, error) {
	mp, err := e.catalog.GetMarketplace(ctx, task.MarketplaceID)
	if errors.Is(err, marketplace.ErrNotFound) {
		return e.cfg.Webhook.DefaultURL, nil
	}
	if err != nil {
		return "", fmt.Errorf("load marketplace: %w", err)
	}
	if mp.WebhookURL != "" {
		return mp.WebhookURL, nil
	}
	return e.cfg.Webhook.DefaultURL, nil
}

// loadOrCreateEvent reuses the event row across webhook retries so every
// attempt lands on one audit record. A missing row is recreated.
func (e *Engine) loadOrCreateEvent(ctx context.Context, msg StepMessage, eventType string, payload map[string]any, url string) (*webhook.Event, error) {
	if msg.WebhookEventID != "" {
		if id, perr := uuid.Parse(msg.WebhookEventID); perr == nil {
			ev, err := e.events.GetEvent(ctx, id)
			if err == nil {
				return ev, nil
			}
			if !errors.Is(err, webhook.ErrEventNotFound) {
				return nil, fmt.Errorf("load webhook event: %w", err)
			}
		}
	}
	ev := &webhook.Event{
		EventType:   eventType,
		Payload:     payload,
		WebhookURL:  url,
		Status:      webhook.EventPending,
		MaxAttempts: e.cfg.Webhook.MaxAttempts,
	}
	if err := e.events.CreateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("create webhook event: %w", err)
	}
	return ev, nil
}

// webhookPayload builds the notification body for the workflow's outcome.
func (e *Engine) webhookPayload(task *Task, failedStep string) map[string]any {
	payload := map[string]any{
		"task_id":    task.TaskID.String(),
		"product_id": task.ProductID.String(),
		"retries":    task.Retries(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if failedStep != "" {
		payload["status"] = "failed"
		payload["failed_step"] = failedStep
		payload["error_details"] = task.ErrorDetails
		return payload
	}
	payload["status"] = "completed"
	payload["enhancement_result"] = task.EnhancementResult
	payload["publication_result"] = task.PublicationResult
	return payload
}

// resultMap renders a publish result the way it is persisted and carried
// in webhook payloads.
func resultMap(r *marketplace.Result) map[string]any {
	b, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"success": r.Success}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"success": r.Success}
	}
	return m
}
