package messaging

import (
	"context"
	"time"
)

// Repository defines the persistence contract for threads and messages.
//
// InsertMessage must apply the message insert and the owning thread's
// denormalized update (last message fields, recipient unread counter) in a
// single transaction: a reader must never observe the message without the
// thread update.
type Repository interface {
	CreateThread(ctx context.Context, thread *Thread) error

	// FindActiveThread returns the active thread between the two users for
	// the given spot context (nil spotID matches threads without context),
	// in either participant order, or ErrThreadNotFound.
	FindActiveThread(ctx context.Context, userA, userB string, spotID *string) (*Thread, error)

	GetThread(ctx context.Context, id string) (*Thread, error)
	ListThreads(ctx context.Context, userID string) ([]Thread, error)

	InsertMessage(ctx context.Context, msg *Message, preview string) error

	// ListMessages returns one page of messages in insertion order. The page
	// holds the latest limit messages created strictly before the cursor; a
	// nil cursor selects the tail of the thread.
	ListMessages(ctx context.Context, threadID string, limit int, before *time.Time) ([]Message, error)

	// MarkRead flags the other party's unread messages as read and resets
	// the reader's counter. Returns the number of messages flagged.
	MarkRead(ctx context.Context, threadID, readerID string) (int64, error)

	SetThreadStatus(ctx context.Context, threadID string, status ThreadStatus) error
}
