package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// ProcessorConfig contains queue processing settings.
type ProcessorConfig struct {
	// MaxAttempts is the retry ceiling. An item whose attempts reach this
	// value is frozen at failed.
	MaxAttempts int
	// PaceEvery / PaceDelay bound the outbound send rate: the processor may
	// burst PaceEvery sends, then is held to PaceEvery sends per PaceDelay.
	PaceEvery int
	PaceDelay time.Duration
}

// DefaultProcessorConfig returns default processor settings.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxAttempts: 3,
		PaceEvery:   10,
		PaceDelay:   time.Second,
	}
}

// Summary reports the outcome of one ProcessBatch invocation.
type Summary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Processor drains the notification queue. Items are claimed (pending ->
// processing) before any slow I/O, processed sequentially and persisted one
// at a time, so a crash or a concurrent run never loses progress or
// double-sends.
type Processor struct {
	config   ProcessorConfig
	repo     Repository
	registry *Registry
	sender   Sender
	limiter  *rate.Limiter
}

// NewProcessor creates a queue processor.
func NewProcessor(config ProcessorConfig, repo Repository, registry *Registry, sender Sender) *Processor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.PaceEvery <= 0 {
		config.PaceEvery = 10
	}
	if config.PaceDelay <= 0 {
		config.PaceDelay = time.Second
	}

	perSecond := float64(config.PaceEvery) / config.PaceDelay.Seconds()

	return &Processor{
		config:   config,
		repo:     repo,
		registry: registry,
		sender:   sender,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), config.PaceEvery),
	}
}

// ProcessBatch claims up to limit due items and attempts delivery for each.
// Re-invocation is safe: only items still pending are touched, and a claim
// lost to a concurrent run is skipped silently.
func (p *Processor) ProcessBatch(ctx context.Context, limit int) (Summary, error) {
	var summary Summary

	items, err := p.repo.ClaimPending(ctx, limit, p.config.MaxAttempts)
	if err != nil {
		return summary, fmt.Errorf("claim pending: %w", err)
	}

	if len(items) == 0 {
		return summary, nil
	}

	slog.Debug("processing notification batch", "count", len(items))
	recordQueueClaimed(len(items))

	for i := range items {
		if err := p.limiter.Wait(ctx); err != nil {
			// Context cancelled mid-batch. Unprocessed items stay claimed
			// until their state is reset; report what we have.
			return summary, fmt.Errorf("pacing wait: %w", err)
		}

		if p.processItem(ctx, &items[i]) {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		summary.Processed++
	}

	return summary, nil
}

// processItem renders and sends one claimed item, persisting the outcome.
// Returns true on successful delivery.
func (p *Processor) processItem(ctx context.Context, item *QueueItem) bool {
	start := time.Now()

	content, err := p.registry.Render(item.Kind, item.Payload)
	if err != nil {
		// Render errors are terminal but ride the same attempts ceiling as
		// every other failure; the classification lands in last_error.
		p.handleSendError(ctx, item, NewTerminalError(err))
		return false
	}

	providerID, err := p.sender.Send(ctx, EmailMessage{
		To:      item.Recipient,
		Subject: content.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
	})
	duration := time.Since(start)

	if err != nil {
		p.handleSendError(ctx, item, err)
		return false
	}

	if err := p.repo.MarkSent(ctx, item.ID, providerID); err != nil {
		slog.Error("failed to mark as sent", "item_id", item.ID, "error", err)
	}

	recordNotificationSent(string(item.Kind), "success")
	recordNotificationDuration(string(item.Kind), duration)

	slog.Debug("notification sent",
		"item_id", item.ID,
		"kind", item.Kind,
		"provider_id", providerID,
		"duration", duration,
	)
	return true
}

func (p *Processor) handleSendError(ctx context.Context, item *QueueItem, err error) {
	slog.Warn("send failed",
		"item_id", item.ID,
		"kind", item.Kind,
		"attempt", item.Attempts+1,
		"max_attempts", p.config.MaxAttempts,
		"retryable", isRetryable(err),
		"error", err,
	)

	// Retry policy is uniform: terminal errors also consume an attempt and
	// ride the same ceiling. The retryable classification is kept in
	// last_error for operators.
	if item.Attempts+1 >= p.config.MaxAttempts {
		if markErr := p.repo.MarkFailed(ctx, item.ID, fmt.Errorf("max attempts exceeded: %w", err)); markErr != nil {
			slog.Error("failed to mark as failed", "item_id", item.ID, "error", markErr)
		}
		recordNotificationSent(string(item.Kind), "failed")
		return
	}

	if markErr := p.repo.MarkRetry(ctx, item.ID, err); markErr != nil {
		slog.Error("failed to mark for retry", "item_id", item.ID, "error", markErr)
	}
	recordNotificationSent(string(item.Kind), "retry")
}
