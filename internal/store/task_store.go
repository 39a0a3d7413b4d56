package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/markethub/markethub/internal/saga"
)

// taskColumns is the canonical select list shared by every task query.
const taskColumns = `t.id, t.task_id, t.product_id, t.marketplace_id, t.status, t.current_step,
	t.enhancement_retries, t.publication_retries, t.webhook_retries, t.max_retries,
	t.enhancement_result, t.publication_result, t.webhook_result, t.steps_completed,
	t.error_details, t.started_at, t.completed_at, t.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*saga.Task, error) {
	var (
		t           saga.Task
		status      string
		currentStep sql.NullString
		errDetails  sql.NullString
		enhJSON     []byte
		pubJSON     []byte
		whJSON      []byte
		stepsJSON   []byte
		completedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.TaskID, &t.ProductID, &t.MarketplaceID, &status, &currentStep,
		&t.EnhancementRetries, &t.PublicationRetries, &t.WebhookRetries, &t.MaxRetries,
		&enhJSON, &pubJSON, &whJSON, &stepsJSON,
		&errDetails, &t.StartedAt, &completedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = saga.Status(status)
	t.CurrentStep = nullStr(currentStep)
	t.ErrorDetails = nullStr(errDetails)
	t.EnhancementResult = unmarshalMap(enhJSON)
	t.PublicationResult = unmarshalMap(pubJSON)
	t.WebhookResult = unmarshalMap(whJSON)
	t.StepsCompleted = unmarshalStrings(stepsJSON)
	t.CompletedAt = timePtr(completedAt)
	return &t, nil
}

// CreateTask inserts a new pending task and fills in the generated fields.
func (s *Store) CreateTask(ctx context.Context, t *saga.Task) error {
	if t.TaskID == uuid.Nil {
		t.TaskID = uuid.New()
	}
	if t.Status == "" {
		t.Status = saga.StatusPending
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = 3
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO markethub.publication_tasks(task_id, product_id, marketplace_id, status, current_step, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, started_at, updated_at`,
		t.TaskID, t.ProductID, t.MarketplaceID, string(t.Status), t.CurrentStep, t.MaxRetries,
	).Scan(&t.ID, &t.StartedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert publication task: %w", err)
	}
	return nil
}

// GetTask loads a task by its public task_id.
func (s *Store) GetTask(ctx context.Context, taskID uuid.UUID) (*saga.Task, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s
		FROM markethub.publication_tasks t
		WHERE t.task_id = $1`, taskColumns),
		taskID,
	)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select publication task: %w", err)
	}
	return t, nil
}

// SetTaskStatus moves a task to status and records the human-readable
// current step. Terminal tasks are never modified.
func (s *Store) SetTaskStatus(ctx context.Context, taskID uuid.UUID, status saga.Status, currentStep string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE markethub.publication_tasks
		SET status = $2, current_step = $3, updated_at = now()
		WHERE task_id = $1 AND status NOT IN ('completed', 'failed')`,
		taskID, string(status), currentStep,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return s.taskUpdateMiss(ctx, taskID)
	}
	return nil
}

// AppendTaskStep records step in steps_completed, keeping the list
// duplicate-free when a step re-runs.
func (s *Store) AppendTaskStep(ctx context.Context, taskID uuid.UUID, step string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE markethub.publication_tasks
		SET steps_completed = CASE
				WHEN steps_completed ? $2 THEN steps_completed
				ELSE steps_completed || to_jsonb($2::text)
			END,
			updated_at = now()
		WHERE task_id = $1`,
		taskID, step,
	)
	if err != nil {
		return fmt.Errorf("append task step: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	return nil
}

// SetTaskStepResult stores the step's result document on its column.
func (s *Store) SetTaskStepResult(ctx context.Context, taskID uuid.UUID, step string, result map[string]any) error {
	col, err := stepResultColumn(step)
	if err != nil {
		return err
	}
	payload, err := jsonText(result)
	if err != nil {
		return fmt.Errorf("marshal %s result: %w", step, err)
	}
	q := fmt.Sprintf(`
		UPDATE markethub.publication_tasks
		SET %s = $2::jsonb, updated_at = now()
		WHERE task_id = $1`, col)
	ct, err := s.pool.Exec(ctx, q, taskID, payload)
	if err != nil {
		return fmt.Errorf("update %s: %w", col, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	return nil
}

// IncrementTaskRetry bumps the step's retry counter and returns the new
// count.
func (s *Store) IncrementTaskRetry(ctx context.Context, taskID uuid.UUID, step string) (int, error) {
	col, err := stepRetryColumn(step)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`
		UPDATE markethub.publication_tasks
		SET %s = %s + 1, updated_at = now()
		WHERE task_id = $1
		RETURNING %s`, col, col, col)
	var n int
	err = s.pool.QueryRow(ctx, q, taskID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", col, err)
	}
	return n, nil
}

// SetTaskError records error details without changing status, used while a
// step still has retries left.
func (s *Store) SetTaskError(ctx context.Context, taskID uuid.UUID, details string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE markethub.publication_tasks
		SET error_details = $2, updated_at = now()
		WHERE task_id = $1`,
		taskID, details,
	)
	if err != nil {
		return fmt.Errorf("update task error: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	return nil
}

// MarkTaskFailed finalizes a task as failed.
func (s *Store) MarkTaskFailed(ctx context.Context, taskID uuid.UUID, currentStep, details string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE markethub.publication_tasks
		SET status = 'failed', current_step = $2, error_details = $3, completed_at = now(), updated_at = now()
		WHERE task_id = $1 AND status NOT IN ('completed', 'failed')`,
		taskID, currentStep, details,
	)
	if err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return s.taskUpdateMiss(ctx, taskID)
	}
	return nil
}

// MarkTaskCompleted finalizes a task as completed.
func (s *Store) MarkTaskCompleted(ctx context.Context, taskID uuid.UUID, currentStep string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE markethub.publication_tasks
		SET status = 'completed', current_step = $2, completed_at = now(), updated_at = now()
		WHERE task_id = $1 AND status NOT IN ('completed', 'failed')`,
		taskID, currentStep,
	)
	if err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return s.taskUpdateMiss(ctx, taskID)
	}
	return nil
}

// ListTasksByProduct returns one page of a product's tasks, most recent
// first, plus the total count for the same filter.
func (s *Store) ListTasksByProduct(ctx context.Context, productID uuid.UUID, f saga.TaskFilter) ([]*saga.Task, int, error) {
	where, args := taskFilterWhere(productID, f)

	var total int
	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM markethub.publication_tasks t WHERE %s`, where)
	if err := s.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count publication tasks: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := fmt.Sprintf(`
		SELECT %s
		FROM markethub.publication_tasks t
		WHERE %s
		ORDER BY t.started_at DESC
		LIMIT $%d OFFSET $%d`, taskColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select publication tasks: %w", err)
	}
	defer rows.Close()

	var out []*saga.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// TaskCountsByStatus groups a product's tasks by status.
func (s *Store) TaskCountsByStatus(ctx context.Context, productID uuid.UUID, f saga.TaskFilter) (map[string]int, error) {
	where, args := taskFilterWhere(productID, f)
	q := fmt.Sprintf(`
		SELECT t.status, COUNT(*)
		FROM markethub.publication_tasks t
		WHERE %s
		GROUP BY t.status`, where)
	return s.countRows(ctx, q, args)
}

// TaskCountsByMarketplace groups a product's tasks by marketplace name.
func (s *Store) TaskCountsByMarketplace(ctx context.Context, productID uuid.UUID, f saga.TaskFilter) (map[string]int, error) {
	where, args := taskFilterWhere(productID, f)
	q := fmt.Sprintf(`
		SELECT m.name, COUNT(*)
		FROM markethub.publication_tasks t
		JOIN markethub.marketplaces m ON m.id = t.marketplace_id
		WHERE %s
		GROUP BY m.name`, where)
	return s.countRows(ctx, q, args)
}

func (s *Store) countRows(ctx context.Context, q string, args []any) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// taskFilterWhere builds the dynamic WHERE clause shared by task listing
// and count queries.
func taskFilterWhere(productID uuid.UUID, f saga.TaskFilter) (string, []any) {
	args := []any{productID}
	where := "t.product_id = $1"
	argn := 1
	if f.Status != "" {
		argn++
		where += fmt.Sprintf(" AND t.status = $%d", argn)
		args = append(args, f.Status)
	}
	if f.MarketplaceID != uuid.Nil {
		argn++
		where += fmt.Sprintf(" AND t.marketplace_id = $%d", argn)
		args = append(args, f.MarketplaceID)
	}
	return where, args
}

// taskUpdateMiss distinguishes a missing task from a terminal one after a
// guarded update matched no rows.
func (s *Store) taskUpdateMiss(ctx context.Context, taskID uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM markethub.publication_tasks
			WHERE task_id = $1)`,
		taskID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check task existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	return fmt.Errorf("task %s: %w", taskID, saga.ErrTaskFinalized)
}

func stepResultColumn(step string) (string, error) {
	switch step {
	case saga.StepEnhancement:
		return "enhancement_result", nil
	case saga.StepPublication:
		return "publication_result", nil
	case saga.StepWebhook:
		return "webhook_result", nil
	}
	return "", fmt.Errorf("unknown step %q", step)
}

func stepRetryColumn(step string) (string, error) {
	switch step {
	case saga.StepEnhancement:
		return "enhancement_retries", nil
	case saga.StepPublication:
		return "publication_retries", nil
	case saga.StepWebhook:
		return "webhook_retries", nil
	}
	return "", fmt.Errorf("unknown step %q", step)
}
