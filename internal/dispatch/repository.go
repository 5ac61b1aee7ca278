package dispatch

import "context"

// Repository defines the persistence contract for the notification queue.
//
// ClaimPending must flip matched rows from pending to processing atomically
// with respect to concurrent callers: a row claimed by one run must never be
// returned to another.
type Repository interface {
	Enqueue(ctx context.Context, item *QueueItem) error

	// ClaimPending returns up to limit pending items with attempts below
	// maxAttempts, oldest first, already transitioned to processing.
	ClaimPending(ctx context.Context, limit, maxAttempts int) ([]QueueItem, error)

	// MarkSent transitions processing -> sent and records the provider id.
	MarkSent(ctx context.Context, id, providerID string) error

	// MarkRetry transitions processing -> pending, incrementing attempts.
	MarkRetry(ctx context.Context, id string, sendErr error) error

	// MarkFailed transitions processing -> failed (terminal), incrementing
	// attempts.
	MarkFailed(ctx context.Context, id string, sendErr error) error

	GetItem(ctx context.Context, id string) (*QueueItem, error)
	QueueStats(ctx context.Context) (*QueueStats, error)
}
