package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ckaraca/spotfound/internal/pkg/ctxlog"
)

// Publisher pushes realtime events to connected clients. Delivery is best
// effort; the persisted message is the source of truth.
type Publisher interface {
	Publish(ctx context.Context, channel string, event string, payload any) error
}

// ServiceConfig tunes message handling limits.
type ServiceConfig struct {
	PreviewLength  int
	PageSize       int
	MaxAttachments int
}

// DefaultServiceConfig returns the stock limits.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		PreviewLength:  100,
		PageSize:       50,
		MaxAttachments: 5,
	}
}

// Service implements the messaging operations on top of a Repository, with
// optional realtime fan-out through a Publisher.
type Service struct {
	repo      Repository
	publisher Publisher
	config    ServiceConfig
}

// NewService creates a messaging service. publisher may be nil.
func NewService(repo Repository, publisher Publisher, config ServiceConfig) *Service {
	if config.PreviewLength <= 0 {
		config.PreviewLength = 100
	}
	if config.PageSize <= 0 {
		config.PageSize = 50
	}
	if config.MaxAttachments <= 0 {
		config.MaxAttachments = 5
	}
	return &Service{repo: repo, publisher: publisher, config: config}
}

// CreateThread opens a conversation between initiator and recipient. If an
// active thread already exists for the same pair and spot context it is
// returned instead of creating a duplicate.
func (s *Service) CreateThread(ctx context.Context, initiatorID, recipientID string, spotID *string) (*Thread, error) {
	if initiatorID == recipientID {
		return nil, ErrSelfThread
	}

	existing, err := s.repo.FindActiveThread(ctx, initiatorID, recipientID, spotID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrThreadNotFound) {
		return nil, fmt.Errorf("find thread: %w", err)
	}

	thread := &Thread{
		ParticipantA: initiatorID,
		ParticipantB: recipientID,
		SpotID:       spotID,
		Status:       ThreadStatusActive,
	}
	if err := s.repo.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

// PostMessage appends a message to a thread on behalf of senderID. The
// message insert and the thread's denormalized update commit atomically; the
// realtime notification to the other participant is fired afterwards and
// never fails the call.
func (s *Service) PostMessage(ctx context.Context, threadID, senderID, content string, attachments []string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if len(attachments) > s.config.MaxAttachments {
		return nil, ErrTooManyAttachments
	}

	thread, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.IsParticipant(senderID) {
		return nil, ErrNotParticipant
	}
	if thread.Status == ThreadStatusArchived {
		return nil, ErrThreadArchived
	}

	msg := &Message{
		ThreadID:    threadID,
		SenderID:    senderID,
		Content:     content,
		Attachments: attachments,
	}
	if err := s.repo.InsertMessage(ctx, msg, preview(content, s.config.PreviewLength)); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	s.notify(ctx, thread.OtherParticipant(senderID), msg)

	return msg, nil
}

// MarkThreadRead flags the counterpart's messages as read for readerID and
// resets the reader's unread counter. Returns the number of messages flagged.
func (s *Service) MarkThreadRead(ctx context.Context, threadID, readerID string) (int64, error) {
	thread, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return 0, err
	}
	if !thread.IsParticipant(readerID) {
		return 0, ErrNotParticipant
	}

	count, err := s.repo.MarkRead(ctx, threadID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return count, nil
}

// ArchiveThread moves a thread to archived. Archiving an archived thread is
// a no-op.
func (s *Service) ArchiveThread(ctx context.Context, threadID, userID string) error {
	thread, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	if !thread.IsParticipant(userID) {
		return ErrNotParticipant
	}
	if thread.Status == ThreadStatusArchived {
		return nil
	}

	if err := s.repo.SetThreadStatus(ctx, threadID, ThreadStatusArchived); err != nil {
		return fmt.Errorf("archive thread: %w", err)
	}
	return nil
}

// ListThreads returns the user's threads, most recently active first.
func (s *Service) ListThreads(ctx context.Context, userID string) ([]Thread, error) {
	threads, err := s.repo.ListThreads(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

// ListMessages returns a page of thread messages for a participant, in
// insertion order. A nil before selects the latest page.
func (s *Service) ListMessages(ctx context.Context, threadID, userID string, limit int, before *time.Time) ([]Message, error) {
	thread, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}

	if limit <= 0 || limit > s.config.PageSize {
		limit = s.config.PageSize
	}

	messages, err := s.repo.ListMessages(ctx, threadID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// notify publishes a message.created event for the recipient. Failures are
// logged and swallowed.
func (s *Service) notify(ctx context.Context, recipientID string, msg *Message) {
	if s.publisher == nil {
		return
	}

	channel := "user:" + recipientID
	if err := s.publisher.Publish(ctx, channel, "message.created", msg); err != nil {
		ctxlog.FromContext(ctx).Warn("realtime publish failed",
			"channel", channel,
			"thread_id", msg.ThreadID,
			"error", err,
		)
	}
}

// preview truncates content to at most n runes for thread list display.
func preview(content string, n int) string {
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[:n])
}
