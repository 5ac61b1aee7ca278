package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeRepo is an in-memory Repository for unit tests. ClaimPending returns
// whatever was staged with stage() and marks it processing.
type fakeRepo struct {
	mu      sync.Mutex
	nextID  int
	items   map[string]*QueueItem
	pending []string

	claimErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: make(map[string]*QueueItem)}
}

func (r *fakeRepo) stage(item QueueItem) *QueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	item.ID = fmt.Sprintf("item-%d", r.nextID)
	if item.Status == "" {
		item.Status = StatusPending
	}
	item.CreatedAt = time.Now().Add(time.Duration(r.nextID) * time.Millisecond)
	stored := item
	r.items[stored.ID] = &stored
	if stored.Status == StatusPending {
		r.pending = append(r.pending, stored.ID)
	}
	return &stored
}

func (r *fakeRepo) Enqueue(_ context.Context, item *QueueItem) error {
	staged := r.stage(*item)
	*item = *staged
	return nil
}

func (r *fakeRepo) ClaimPending(_ context.Context, limit, maxAttempts int) ([]QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.claimErr != nil {
		return nil, r.claimErr
	}

	var claimed []QueueItem
	var rest []string
	for _, id := range r.pending {
		item := r.items[id]
		if len(claimed) < limit && item.Attempts < maxAttempts {
			item.Status = StatusProcessing
			claimed = append(claimed, *item)
			continue
		}
		rest = append(rest, id)
	}
	r.pending = rest
	return claimed, nil
}

func (r *fakeRepo) MarkSent(_ context.Context, id, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != StatusProcessing {
		return ErrNotClaimed
	}
	now := time.Now()
	item.Status = StatusSent
	item.ProviderID = providerID
	item.LastError = ""
	item.SentAt = &now
	return nil
}

func (r *fakeRepo) MarkRetry(_ context.Context, id string, sendErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != StatusProcessing {
		return ErrNotClaimed
	}
	item.Status = StatusPending
	item.Attempts++
	item.LastError = sendErr.Error()
	r.pending = append(r.pending, id)
	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, id string, sendErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != StatusProcessing {
		return ErrNotClaimed
	}
	item.Status = StatusFailed
	item.Attempts++
	item.LastError = sendErr.Error()
	return nil
}

func (r *fakeRepo) GetItem(_ context.Context, id string) (*QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (r *fakeRepo) QueueStats(_ context.Context) (*QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats QueueStats
	for _, item := range r.items {
		switch item.Status {
		case StatusPending:
			stats.Pending++
		case StatusProcessing:
			stats.Processing++
		case StatusSent:
			stats.Sent++
		case StatusFailed:
			stats.Failed++
		}
	}
	return &stats, nil
}

func (r *fakeRepo) get(id string) QueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.items[id]
}

// fakeSender records sends and answers with a configured error per recipient.
type fakeSender struct {
	mu      sync.Mutex
	sent    []EmailMessage
	errFor  map[string]error
	nextID  int
	lastErr error
}

func newFakeSender() *fakeSender {
	return &fakeSender{errFor: make(map[string]error)}
}

func (s *fakeSender) Send(_ context.Context, msg EmailMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errFor[msg.To]; err != nil {
		s.lastErr = err
		return "", err
	}
	s.sent = append(s.sent, msg)
	s.nextID++
	return fmt.Sprintf("provider-%d", s.nextID), nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
