package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/markethub/markethub/internal/webhook"
)

const eventColumns = `id, event_type, payload, webhook_url, status,
	response_status_code, response_body, attempts, max_attempts, created_at, updated_at`

func scanEvent(row rowScanner) (*webhook.Event, error) {
	var (
		ev          webhook.Event
		payloadJSON []byte
		respCode    sql.NullInt32
		respBody    sql.NullString
	)
	err := row.Scan(&ev.ID, &ev.EventType, &payloadJSON, &ev.WebhookURL, &ev.Status,
		&respCode, &respBody, &ev.Attempts, &ev.MaxAttempts, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ev.Payload = unmarshalMap(payloadJSON)
	ev.ResponseStatusCode = intPtr(respCode)
	ev.ResponseBody = nullStr(respBody)
	return &ev, nil
}

// CreateEvent inserts a pending webhook event and fills in the generated
// fields.
func (s *Store) CreateEvent(ctx context.Context, ev *webhook.Event) error {
	if ev.Status == "" {
		ev.Status = webhook.EventPending
	}
	if ev.MaxAttempts == 0 {
		ev.MaxAttempts = 3
	}
	payload, err := jsonText(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO markethub.webhook_events(event_type, payload, webhook_url, status, max_attempts)
		VALUES ($1, $2::jsonb, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		ev.EventType, payload, ev.WebhookURL, ev.Status, ev.MaxAttempts,
	).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// GetEvent loads a webhook event by id.
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*webhook.Event, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s
		FROM markethub.webhook_events
		WHERE id = $1`, eventColumns),
		id,
	)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, webhook.ErrEventNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select webhook event: %w", err)
	}
	return ev, nil
}

// RecordEventAttempt stores the outcome of one delivery attempt. httpStatus
// may be nil when the request never reached the receiver.
func (s *Store) RecordEventAttempt(ctx context.Context, id uuid.UUID, attempts int, status string, httpStatus *int, body string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE markethub.webhook_events
		SET attempts = $2, status = $3, response_status_code = $4, response_body = $5, updated_at = now()
		WHERE id = $1`,
		id, attempts, status, httpStatus, body,
	)
	if err != nil {
		return fmt.Errorf("record event attempt: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, webhook.ErrEventNotFound)
	}
	return nil
}

// MarkEventPending resets a failed event for a manual retry, preserving the
// attempt counter.
func (s *Store) MarkEventPending(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE markethub.webhook_events
		SET status = 'pending', updated_at = now()
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark event pending: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, webhook.ErrEventNotFound)
	}
	return nil
}

// ListEvents returns one page of events, most recent first.
func (s *Store) ListEvents(ctx context.Context, f webhook.EventFilter) ([]*webhook.Event, error) {
	// Build dynamic WHERE clause
	args := []any{}
	where := "1=1"
	argn := 0
	if f.EventType != "" {
		argn++
		where += fmt.Sprintf(" AND event_type = $%d", argn)
		args = append(args, f.EventType)
	}
	if f.Status != "" {
		argn++
		where += fmt.Sprintf(" AND status = $%d", argn)
		args = append(args, f.Status)
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
		FROM markethub.webhook_events
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, eventColumns, where, argn+1, argn+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select webhook events: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
