// Package postgres provides the PostgreSQL implementation of the messaging
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckaraca/spotfound/internal/messaging"
)

// Repository implements messaging.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL messaging repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const threadColumns = `id, participant_a, participant_b, spot_id, last_message_at, last_message_preview, unread_a, unread_b, status, created_at, updated_at`

// CreateThread inserts a new active thread.
func (r *Repository) CreateThread(ctx context.Context, thread *messaging.Thread) error {
	query := `
		INSERT INTO threads (participant_a, participant_b, spot_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		thread.ParticipantA,
		thread.ParticipantB,
		thread.SpotID,
		thread.Status,
	).Scan(&thread.ID, &thread.CreatedAt, &thread.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

// FindActiveThread looks up the active thread for a participant pair and spot
// context, matching participants in either order.
func (r *Repository) FindActiveThread(ctx context.Context, userA, userB string, spotID *string) (*messaging.Thread, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM threads
		WHERE status = 'active'
		  AND ((participant_a = $1 AND participant_b = $2) OR (participant_a = $2 AND participant_b = $1))
		  AND spot_id IS NOT DISTINCT FROM $3
		LIMIT 1
	`, threadColumns)

	row := r.db.QueryRow(ctx, query, userA, userB, spotID)
	thread, err := scanThread(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, messaging.ErrThreadNotFound
		}
		return nil, fmt.Errorf("find thread: %w", err)
	}
	return thread, nil
}

// GetThread retrieves a thread by id.
func (r *Repository) GetThread(ctx context.Context, id string) (*messaging.Thread, error) {
	query := fmt.Sprintf(`SELECT %s FROM threads WHERE id = $1`, threadColumns)

	row := r.db.QueryRow(ctx, query, id)
	thread, err := scanThread(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, messaging.ErrThreadNotFound
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return thread, nil
}

// ListThreads returns a user's threads ordered by most recent activity.
// Threads without messages yet sort by creation time.
func (r *Repository) ListThreads(ctx context.Context, userID string) ([]messaging.Thread, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM threads
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`, threadColumns)

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []messaging.Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, *thread)
	}
	return threads, rows.Err()
}

// InsertMessage inserts the message and updates the owning thread's
// denormalized fields in one transaction. The recipient's unread counter is
// chosen by comparing the sender against participant_a.
func (r *Repository) InsertMessage(ctx context.Context, msg *messaging.Message, preview string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	attachments := msg.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (thread_id, sender_id, content, attachments)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, msg.ThreadID, msg.SenderID, msg.Content, attachments).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE threads
		SET last_message_at = $2,
		    last_message_preview = $3,
		    unread_a = unread_a + CASE WHEN participant_a = $4 THEN 0 ELSE 1 END,
		    unread_b = unread_b + CASE WHEN participant_a = $4 THEN 1 ELSE 0 END,
		    updated_at = now()
		WHERE id = $1
	`, msg.ThreadID, msg.CreatedAt, preview, msg.SenderID)
	if err != nil {
		return fmt.Errorf("update thread: %w", err)
	}
	if result.RowsAffected() == 0 {
		return messaging.ErrThreadNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListMessages returns one page of messages in insertion order. The page is
// selected as the latest limit messages created strictly before the cursor
// (nil cursor means the tail of the thread), then reversed for display.
func (r *Repository) ListMessages(ctx context.Context, threadID string, limit int, before *time.Time) ([]messaging.Message, error) {
	query := `
		SELECT id, thread_id, sender_id, content, attachments, is_read, created_at
		FROM messages
		WHERE thread_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, threadID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []messaging.Message
	for rows.Next() {
		var msg messaging.Message
		err := rows.Scan(
			&msg.ID,
			&msg.ThreadID,
			&msg.SenderID,
			&msg.Content,
			&msg.Attachments,
			&msg.IsRead,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first within the page.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead flags the other party's unread messages as read and zeroes the
// reader's counter, atomically.
func (r *Repository) MarkRead(ctx context.Context, threadID, readerID string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, `
		UPDATE messages
		SET is_read = true
		WHERE thread_id = $1 AND sender_id <> $2 AND is_read = false
	`, threadID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	count := result.RowsAffected()

	_, err = tx.Exec(ctx, `
		UPDATE threads
		SET unread_a = CASE WHEN participant_a = $2 THEN 0 ELSE unread_a END,
		    unread_b = CASE WHEN participant_b = $2 THEN 0 ELSE unread_b END,
		    updated_at = now()
		WHERE id = $1
	`, threadID, readerID)
	if err != nil {
		return 0, fmt.Errorf("reset unread counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return count, nil
}

// SetThreadStatus updates a thread's lifecycle state.
func (r *Repository) SetThreadStatus(ctx context.Context, threadID string, status messaging.ThreadStatus) error {
	result, err := r.db.Exec(ctx, `
		UPDATE threads SET status = $2, updated_at = now() WHERE id = $1
	`, threadID, status)
	if err != nil {
		return fmt.Errorf("set thread status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return messaging.ErrThreadNotFound
	}
	return nil
}

// scanThread scans one thread row.
func scanThread(row pgx.Row) (*messaging.Thread, error) {
	var thread messaging.Thread
	var status string
	err := row.Scan(
		&thread.ID,
		&thread.ParticipantA,
		&thread.ParticipantB,
		&thread.SpotID,
		&thread.LastMessageAt,
		&thread.LastMessagePreview,
		&thread.UnreadA,
		&thread.UnreadB,
		&status,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	thread.Status = messaging.ThreadStatus(status)
	return &thread, nil
}
