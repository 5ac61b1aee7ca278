package messaging

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ckaraca/spotfound/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrThreadNotFound, Status: http.StatusNotFound, Message: "thread not found"},
	{Error: ErrNotParticipant, Status: http.StatusForbidden, Message: "you are not a participant of this thread"},
	{Error: ErrSelfThread, Status: http.StatusBadRequest, Message: "cannot open a thread with yourself"},
	{Error: ErrEmptyContent, Status: http.StatusBadRequest, Message: "message content cannot be empty"},
	{Error: ErrThreadArchived, Status: http.StatusConflict, Message: "thread is archived"},
	{Error: ErrTooManyAttachments, Status: http.StatusBadRequest, Message: "too many attachments"},
}

// Handler exposes the messaging HTTP API. The acting user comes from the
// X-User-ID header set by the frontend proxy.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler creates a messaging HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the messaging routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/threads", func(r chi.Router) {
		r.Use(httputil.UserIDMiddleware)
		r.Use(httputil.RequireUserID)

		r.Get("/", h.ListThreads)
		r.Post("/", h.CreateThread)

		r.Route("/{threadID}", func(r chi.Router) {
			r.Get("/messages", h.ListMessages)
			r.Post("/messages", h.PostMessage)
			r.Post("/read", h.MarkRead)
			r.Post("/archive", h.Archive)
		})
	})
}

type createThreadRequest struct {
	RecipientID string  `json:"recipient_id" validate:"required,uuid4"`
	SpotID      *string `json:"spot_id,omitempty" validate:"omitempty,uuid4"`
}

// CreateThread opens (or returns the existing) thread with another user.
func (h *Handler) CreateThread(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	var req createThreadRequest
	if !h.decode(w, r, &req) {
		return
	}

	thread, err := h.service.CreateThread(r.Context(), userID, req.RecipientID, req.SpotID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, thread)
}

// ListThreads returns the caller's threads, most recently active first.
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	threads, err := h.service.ListThreads(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, threads)
}

type postMessageRequest struct {
	Content     string   `json:"content" validate:"required,max=5000"`
	Attachments []string `json:"attachments,omitempty" validate:"omitempty,dive,url"`
}

// PostMessage appends a message to a thread.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	threadID, ok := h.threadID(w, r)
	if !ok {
		return
	}

	var req postMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.service.PostMessage(r.Context(), threadID, userID, req.Content, req.Attachments)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, msg)
}

// ListMessages returns a page of thread messages in insertion order. Supports
// ?limit= and ?before= (RFC 3339) query parameters.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	threadID, ok := h.threadID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		before = &t
	}

	messages, err := h.service.ListMessages(r.Context(), threadID, userID, limit, before)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, messages)
}

// MarkRead flags the counterpart's messages as read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	threadID, ok := h.threadID(w, r)
	if !ok {
		return
	}

	count, err := h.service.MarkThreadRead(r.Context(), threadID, userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int64{"marked_read": count})
}

// Archive moves a thread to archived.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	threadID, ok := h.threadID(w, r)
	if !ok {
		return
	}

	if err := h.service.ArchiveThread(r.Context(), threadID, userID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// threadID extracts and validates the thread id path parameter. A malformed
// id is indistinguishable from a missing thread.
func (h *Handler) threadID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "threadID")
	if uuid.Validate(id) != nil {
		httputil.Error(w, http.StatusNotFound, "thread not found")
		return "", false
	}
	return id, true
}

// decode parses and validates a JSON request body. Writes the error response
// and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httputil.ValidationError(w, err)
		return false
	}
	return true
}
