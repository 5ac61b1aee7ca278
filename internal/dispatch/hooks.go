package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ckaraca/spotfound/internal/domain"
)

// RecipientResolver maps a user id to a deliverable address and display name.
type RecipientResolver interface {
	ResolveUser(ctx context.Context, userID string) (email, name string, err error)
}

// Hooks translate domain events into queue enqueues. A failed recipient
// lookup is logged and swallowed: the triggering domain action must succeed
// whether or not its notification could be enqueued. Returned errors are
// advisory (enqueue failures) and must not fail the caller either.
type Hooks struct {
	queue      *Queue
	resolver   RecipientResolver
	baseURL    string
	adminEmail string
}

// NewHooks creates the event hook set.
func NewHooks(queue *Queue, resolver RecipientResolver, baseURL, adminEmail string) *Hooks {
	return &Hooks{
		queue:      queue,
		resolver:   resolver,
		baseURL:    baseURL,
		adminEmail: adminEmail,
	}
}

// UserRegistered enqueues a welcome email for a new personal account.
func (h *Hooks) UserRegistered(ctx context.Context, userID string) error {
	email, name, ok := h.resolve(ctx, "user_registered", userID)
	if !ok {
		return nil
	}

	_, err := h.queue.Enqueue(ctx, KindWelcome, email, WelcomePayload{Name: name})
	return h.report("user_registered", err)
}

// ShopRegistered enqueues a business welcome email for a new shop.
func (h *Hooks) ShopRegistered(ctx context.Context, shop *domain.Shop) error {
	email, name, ok := h.resolve(ctx, "shop_registered", shop.OwnerID)
	if !ok {
		return nil
	}

	_, err := h.queue.Enqueue(ctx, KindBusinessWelcome, email, BusinessWelcomePayload{
		ShopName:  shop.Name,
		OwnerName: name,
	})
	return h.report("shop_registered", err)
}

// SpotCreated confirms a new listing to its owner.
func (h *Hooks) SpotCreated(ctx context.Context, spot *domain.Spot) error {
	email, name, ok := h.resolve(ctx, "spot_created", spot.OwnerID)
	if !ok {
		return nil
	}

	_, err := h.queue.Enqueue(ctx, KindSpotCreated, email, SpotCreatedPayload{
		Name:      name,
		SpotTitle: spot.Title,
		SpotURL:   h.spotURL(spot.ID),
	})
	return h.report("spot_created", err)
}

// SightingReported notifies a spot owner about a new sighting.
func (h *Hooks) SightingReported(ctx context.Context, spot *domain.Spot, sighting *domain.Sighting) error {
	email, ownerName, ok := h.resolve(ctx, "sighting_reported", spot.OwnerID)
	if !ok {
		return nil
	}

	// Reporter name is cosmetic; fall back to a generic label.
	sighterName := "A Spotfound member"
	if _, name, err := h.resolver.ResolveUser(ctx, sighting.ReporterID); err == nil && name != "" {
		sighterName = name
	}

	_, err := h.queue.Enqueue(ctx, KindSpotSighting, email, SpotSightingPayload{
		OwnerName:   ownerName,
		SpotTitle:   spot.Title,
		SighterName: sighterName,
		Location:    sighting.Location,
		Note:        sighting.Note,
		SpotURL:     h.spotURL(spot.ID),
	})
	return h.report("sighting_reported", err)
}

// SpotFound congratulates an owner whose listing was resolved.
func (h *Hooks) SpotFound(ctx context.Context, spot *domain.Spot) error {
	email, name, ok := h.resolve(ctx, "spot_found", spot.OwnerID)
	if !ok {
		return nil
	}

	_, err := h.queue.Enqueue(ctx, KindSpotFound, email, SpotFoundPayload{
		OwnerName: name,
		SpotTitle: spot.Title,
		SpotURL:   h.spotURL(spot.ID),
	})
	return h.report("spot_found", err)
}

// PasswordResetRequested enqueues a password reset email.
func (h *Hooks) PasswordResetRequested(ctx context.Context, userID, resetURL, ttl string) error {
	email, name, ok := h.resolve(ctx, "password_reset_requested", userID)
	if !ok {
		return nil
	}

	_, err := h.queue.Enqueue(ctx, KindPasswordReset, email, PasswordResetPayload{
		Name:     name,
		ResetURL: resetURL,
		TTL:      ttl,
	})
	return h.report("password_reset_requested", err)
}

// EmailVerificationRequested enqueues an address confirmation email.
func (h *Hooks) EmailVerificationRequested(ctx context.Context, userID, verifyURL string) error {
	email, name, ok := h.resolve(ctx, "email_verification_requested", userID)
	if !ok {
		return nil
	}

	_, err := h.queue.Enqueue(ctx, KindVerifyEmail, email, VerifyEmailPayload{
		Name:      name,
		VerifyURL: verifyURL,
	})
	return h.report("email_verification_requested", err)
}

// AdminAlert enqueues an operational alert to the configured admin address.
func (h *Hooks) AdminAlert(ctx context.Context, summary, detail string) error {
	if h.adminEmail == "" {
		slog.Warn("admin alert dropped, no admin email configured", "summary", summary)
		return nil
	}

	_, err := h.queue.Enqueue(ctx, KindAdminAlert, h.adminEmail, AdminAlertPayload{
		Summary: summary,
		Detail:  detail,
	})
	return h.report("admin_alert", err)
}

// resolve looks up the recipient, logging and reporting false on failure.
func (h *Hooks) resolve(ctx context.Context, event, userID string) (email, name string, ok bool) {
	email, name, err := h.resolver.ResolveUser(ctx, userID)
	if err != nil {
		slog.Warn("hook recipient lookup failed, notification skipped",
			"event", event,
			"user_id", userID,
			"error", err,
		)
		return "", "", false
	}
	if email == "" {
		slog.Warn("hook recipient has no email, notification skipped",
			"event", event,
			"user_id", userID,
		)
		return "", "", false
	}
	return email, name, true
}

func (h *Hooks) report(event string, err error) error {
	if err != nil {
		slog.Error("hook enqueue failed", "event", event, "error", err)
		return fmt.Errorf("hook %s: %w", event, err)
	}
	return nil
}

func (h *Hooks) spotURL(spotID string) string {
	if h.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/spots/%s", h.baseURL, spotID)
}
