package dispatch

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ckaraca/spotfound/internal/domain"
	"github.com/ckaraca/spotfound/internal/pkg/httputil"
)

// SecretHeader authenticates calls to the internal dispatch endpoints.
const SecretHeader = "X-Dispatch-Secret"

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrTemplateNotFound, Status: http.StatusBadRequest, Message: "unknown notification kind"},
	{Error: ErrEmptyRecipient, Status: http.StatusBadRequest, Message: "recipient could not be resolved"},
	{Error: ErrItemNotFound, Status: http.StatusNotFound, Message: "queue item not found"},
}

// Handler exposes the internal dispatch surface: the processing trigger,
// queue stats and the domain event hook endpoints. All routes require the
// shared secret; a mismatch is rejected before any side effect.
type Handler struct {
	processor *Processor
	queue     *Queue
	hooks     *Hooks
	secret    string
	batchSize int
	validator *validator.Validate
}

// NewHandler creates the dispatch handler.
func NewHandler(processor *Processor, queue *Queue, hooks *Hooks, secret string, batchSize int) *Handler {
	return &Handler{
		processor: processor,
		queue:     queue,
		hooks:     hooks,
		secret:    secret,
		batchSize: batchSize,
		validator: validator.New(),
	}
}

// RegisterRoutes mounts the internal dispatch routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/internal/dispatch", func(r chi.Router) {
		r.Use(h.requireSecret)
		r.Post("/process", h.Process)
		r.Get("/stats", h.Stats)
		r.Route("/events", func(r chi.Router) {
			r.Post("/user-registered", h.EventUserRegistered)
			r.Post("/shop-registered", h.EventShopRegistered)
			r.Post("/spot-created", h.EventSpotCreated)
			r.Post("/sighting-reported", h.EventSightingReported)
			r.Post("/spot-found", h.EventSpotFound)
			r.Post("/password-reset", h.EventPasswordReset)
			r.Post("/verify-email", h.EventVerifyEmail)
			r.Post("/admin-alert", h.EventAdminAlert)
		})
	})
}

// requireSecret rejects requests without the correct shared secret.
func (h *Handler) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			httputil.Error(w, http.StatusUnauthorized, "invalid dispatch secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ProcessRequest optionally overrides the batch limit.
type ProcessRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=500"`
}

// Process handles POST /internal/dispatch/process.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = h.batchSize
	}

	summary, err := h.processor.ProcessBatch(r.Context(), limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// Stats handles GET /internal/dispatch/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	RecordQueueStats(stats)
	httputil.Success(w, http.StatusOK, stats)
}

// Event bodies. Domain actions run in the marketplace frontends; they report
// events here after the fact, so every handler answers 202 even when the
// notification was skipped (hook failures never fail the domain action).

type userEventRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type shopEventRequest struct {
	ShopID   string `json:"shop_id" validate:"required,uuid"`
	OwnerID  string `json:"owner_id" validate:"required,uuid"`
	ShopName string `json:"shop_name" validate:"required"`
}

type spotEventRequest struct {
	SpotID    string `json:"spot_id" validate:"required,uuid"`
	OwnerID   string `json:"owner_id" validate:"required,uuid"`
	SpotTitle string `json:"spot_title" validate:"required"`
}

type sightingEventRequest struct {
	SpotID     string `json:"spot_id" validate:"required,uuid"`
	OwnerID    string `json:"owner_id" validate:"required,uuid"`
	SpotTitle  string `json:"spot_title" validate:"required"`
	ReporterID string `json:"reporter_id" validate:"required,uuid"`
	Location   string `json:"location"`
	Note       string `json:"note"`
}

type passwordResetEventRequest struct {
	UserID   string `json:"user_id" validate:"required,uuid"`
	ResetURL string `json:"reset_url" validate:"required,url"`
	TTL      string `json:"ttl"`
}

type verifyEmailEventRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid"`
	VerifyURL string `json:"verify_url" validate:"required,url"`
}

type adminAlertEventRequest struct {
	Summary string `json:"summary" validate:"required"`
	Detail  string `json:"detail"`
}

// EventUserRegistered handles POST /internal/dispatch/events/user-registered.
func (h *Handler) EventUserRegistered(w http.ResponseWriter, r *http.Request) {
	var req userEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	_ = h.hooks.UserRegistered(r.Context(), req.UserID)
	w.WriteHeader(http.StatusAccepted)
}

// EventShopRegistered handles POST /internal/dispatch/events/shop-registered.
func (h *Handler) EventShopRegistered(w http.ResponseWriter, r *http.Request) {
	var req shopEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	_ = h.hooks.ShopRegistered(r.Context(), &domain.Shop{
		ID:      req.ShopID,
		OwnerID: req.OwnerID,
		Name:    req.ShopName,
	})
	w.WriteHeader(http.StatusAccepted)
}

// EventSpotCreated handles POST /internal/dispatch/events/spot-created.
func (h *Handler) EventSpotCreated(w http.ResponseWriter, r *http.Request) {
	var req spotEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	_ = h.hooks.SpotCreated(r.Context(), &domain.Spot{
		ID:      req.SpotID,
		OwnerID: req.OwnerID,
		Title:   req.SpotTitle,
	})
	w.WriteHeader(http.StatusAccepted)
}

// EventSightingReported handles POST /internal/dispatch/events/sighting-reported.
func (h *Handler) EventSightingReported(w http.ResponseWriter, r *http.Request) {
	var req sightingEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	spot := &domain.Spot{ID: req.SpotID, OwnerID: req.OwnerID, Title: req.SpotTitle}
	sighting := &domain.Sighting{
		SpotID:     req.SpotID,
		ReporterID: req.ReporterID,
		Location:   req.Location,
		Note:       req.Note,
	}
	_ = h.hooks.SightingReported(r.Context(), spot, sighting)
	w.WriteHeader(http.StatusAccepted)
}

// EventSpotFound handles POST /internal/dispatch/events/spot-found.
func (h *Handler) EventSpotFound(w http.ResponseWriter, r *http.Request) {
	var req spotEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	_ = h.hooks.SpotFound(r.Context(), &domain.Spot{
		ID:      req.SpotID,
		OwnerID: req.OwnerID,
		Title:   req.SpotTitle,
	})
	w.WriteHeader(http.StatusAccepted)
}

// EventPasswordReset handles POST /internal/dispatch/events/password-reset.
func (h *Handler) EventPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	_ = h.hooks.PasswordResetRequested(r.Context(), req.UserID, req.ResetURL, req.TTL)
	w.WriteHeader(http.StatusAccepted)
}

// EventVerifyEmail handles POST /internal/dispatch/events/verify-email.
func (h *Handler) EventVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	_ = h.hooks.EmailVerificationRequested(r.Context(), req.UserID, req.VerifyURL)
	w.WriteHeader(http.StatusAccepted)
}

// EventAdminAlert handles POST /internal/dispatch/events/admin-alert.
func (h *Handler) EventAdminAlert(w http.ResponseWriter, r *http.Request) {
	var req adminAlertEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	_ = h.hooks.AdminAlert(r.Context(), req.Summary, req.Detail)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httputil.ValidationError(w, err)
		return false
	}
	return true
}
