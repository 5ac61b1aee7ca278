// Package postgres provides the PostgreSQL implementation of the
// notification queue repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckaraca/spotfound/internal/dispatch"
)

// Repository implements dispatch.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL queue repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const itemColumns = `id, kind, recipient, subject, payload, status, attempts, last_error, provider_id, created_at, updated_at, sent_at`

// Enqueue inserts a pending queue item.
func (r *Repository) Enqueue(ctx context.Context, item *dispatch.QueueItem) error {
	query := `
		INSERT INTO notification_queue (kind, recipient, payload, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		item.Kind,
		item.Recipient,
		item.Payload,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	item.Status = dispatch.StatusPending
	return nil
}

// ClaimPending atomically flips up to limit due rows from pending to
// processing and returns them oldest first. SKIP LOCKED keeps concurrent
// runs from blocking on, or double-claiming, the same rows.
func (r *Repository) ClaimPending(ctx context.Context, limit, maxAttempts int) ([]dispatch.QueueItem, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	query := fmt.Sprintf(`
		WITH due AS (
			SELECT id FROM notification_queue
			WHERE status = 'pending' AND attempts < $2
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_queue q
		SET status = 'processing', updated_at = now()
		FROM due
		WHERE q.id = due.id
		RETURNING %s
	`, qualify("q", itemColumns))

	rows, err := r.db.Query(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	defer rows.Close()

	items := make([]dispatch.QueueItem, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim pending rows: %w", err)
	}

	// UPDATE ... RETURNING does not guarantee row order.
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	return items, nil
}

// MarkSent transitions processing -> sent. The status guard makes the write
// a no-op for any item this run does not own.
func (r *Repository) MarkSent(ctx context.Context, id, providerID string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'sent', sent_at = now(), provider_id = $2, last_error = '', updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, providerID)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return dispatch.ErrNotClaimed
	}
	return nil
}

// MarkRetry transitions processing -> pending, consuming one attempt.
func (r *Repository) MarkRetry(ctx context.Context, id string, sendErr error) error {
	result, err := r.db.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'pending', attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, errorText(sendErr))
	if err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return dispatch.ErrNotClaimed
	}
	return nil
}

// MarkFailed transitions processing -> failed (terminal), consuming one
// attempt.
func (r *Repository) MarkFailed(ctx context.Context, id string, sendErr error) error {
	result, err := r.db.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, errorText(sendErr))
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return dispatch.ErrNotClaimed
	}
	return nil
}

// GetItem retrieves a queue item by id.
func (r *Repository) GetItem(ctx context.Context, id string) (*dispatch.QueueItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_queue WHERE id = $1`, itemColumns)

	row := r.db.QueryRow(ctx, query, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dispatch.ErrItemNotFound
		}
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// QueueStats returns per-status counts.
func (r *Repository) QueueStats(ctx context.Context) (*dispatch.QueueStats, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, count(*) FROM notification_queue GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats dispatch.QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		switch dispatch.Status(status) {
		case dispatch.StatusPending:
			stats.Pending = count
		case dispatch.StatusProcessing:
			stats.Processing = count
		case dispatch.StatusSent:
			stats.Sent = count
		case dispatch.StatusFailed:
			stats.Failed = count
		}
	}
	return &stats, rows.Err()
}

// scanItem scans one queue row.
func scanItem(row pgx.Row) (*dispatch.QueueItem, error) {
	var item dispatch.QueueItem
	var status string
	err := row.Scan(
		&item.ID,
		&item.Kind,
		&item.Recipient,
		&item.Subject,
		&item.Payload,
		&status,
		&item.Attempts,
		&item.LastError,
		&item.ProviderID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.SentAt,
	)
	if err != nil {
		return nil, err
	}
	item.Status = dispatch.Status(status)
	return &item, nil
}

// qualify prefixes each column in a comma-separated list with an alias.
func qualify(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// errorText truncates an error for storage in last_error.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
