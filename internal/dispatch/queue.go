// Package dispatch implements the notification dispatch pipeline: a durable
// queue of outbound notifications, a template registry, a delivery client
// contract and the processor that drains the queue.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies a notification type. Each kind has exactly one template.
type Kind string

// Notification kinds.
const (
	KindWelcome         Kind = "welcome"
	KindBusinessWelcome Kind = "business-welcome"
	KindSpotCreated     Kind = "spot-created"
	KindSpotSighting    Kind = "spot-sighting"
	KindSpotFound       Kind = "spot-found"
	KindPasswordReset   Kind = "password-reset"
	KindVerifyEmail     Kind = "verify-email"
	KindAdminAlert      Kind = "admin-alert"
)

// Status represents the delivery state of a queue item.
type Status string

// Queue item statuses. Sent and failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// QueueItem is one outbound notification attempt. Immutable after enqueue
// except for Status, Attempts, LastError and SentAt, which only the
// processor mutates.
type QueueItem struct {
	ID         string
	Kind       Kind
	Recipient  string
	Subject    string
	Payload    []byte // JSON-encoded payload for Kind
	Status     Status
	Attempts   int
	LastError  string
	ProviderID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	SentAt     *time.Time
}

// QueueStats holds per-status queue counts.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

// Queue enqueues notifications. Template lookup happens at enqueue time so
// that a notification with no registered renderer is rejected up front
// instead of poisoning the queue.
type Queue struct {
	repo     Repository
	registry *Registry
}

// NewQueue creates a Queue backed by repo, validating kinds against registry.
func NewQueue(repo Repository, registry *Registry) *Queue {
	return &Queue{repo: repo, registry: registry}
}

// Enqueue stores a pending notification for later delivery.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, recipient string, payload any) (*QueueItem, error) {
	if !q.registry.Has(kind) {
		return nil, fmt.Errorf("enqueue %s: %w", kind, ErrTemplateNotFound)
	}
	if recipient == "" {
		return nil, fmt.Errorf("enqueue %s: %w", kind, ErrEmptyRecipient)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", kind, err)
	}

	item := &QueueItem{
		Kind:      kind,
		Recipient: recipient,
		Payload:   raw,
		Status:    StatusPending,
	}

	if err := q.repo.Enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", kind, err)
	}

	return item, nil
}

// Stats returns current queue counts.
func (q *Queue) Stats(ctx context.Context) (*QueueStats, error) {
	return q.repo.QueueStats(ctx)
}
