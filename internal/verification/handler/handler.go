// Package handler is the thin HTTP layer for verification lookups. It
// parses requests, delegates to the coordinator, and maps domain errors to
// the uniform JSON envelope; no business logic lives here.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trustgate/internal/verification/models"
	"trustgate/internal/verification/notify"
	"trustgate/internal/verification/service"
	dErrors "trustgate/pkg/domain-errors"
)

type Handler struct {
	service    *service.Service
	subscriber notify.Subscriber
	logger     *slog.Logger
}

type Option func(*Handler)

// WithSubscriber enables the push-notification endpoint for callers
// waiting on a pending fetch.
func WithSubscriber(sub notify.Subscriber) Option {
	return func(h *Handler) {
		h.subscriber = sub
	}
}

func New(svc *service.Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the verification routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
	r.Get("/quota", h.HandleQuota)
	if h.subscriber != nil {
		r.Get("/verify/{username}/events", h.HandleEvents)
	}
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req models.LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return
	}

	resp, err := h.service.Lookup(r.Context(), req.Username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleQuota(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Quota(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// HandleEvents streams the completed report for a key over SSE. Callers
// that received PENDING hold this open instead of polling; the stream
// closes after the first result.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	key := models.NormalizeUsername(chi.URLParam(r, "username"))
	if key == "" {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "username is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	results, cancel, err := h.subscriber.Subscribe(r.Context(), key)
	if err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "subscribe failed"))
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	select {
	case <-r.Context().Done():
	case report, open := <-results:
		if !open {
			return
		}
		_, _ = w.Write([]byte("event: result\ndata: "))
		_, _ = w.Write(report)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && h.logger != nil {
		h.logger.Error("write response failed", "error", err)
	}
}

// writeError renders the uniform error envelope. Funding errors carry
// nextResetTime so clients can render a countdown to the next free-quota
// reset.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	resp := models.ErrorResponse{
		Error: dErrors.MessageOf(err),
		Code:  string(code),
	}

	switch code {
	case dErrors.CodeAuthRequired, dErrors.CodeInsufficientCredits, dErrors.CodeFreeLookupLimitExceeded:
		if status, qErr := h.service.Quota(r.Context()); qErr == nil {
			resp.NextResetTime = status.NextResetTime
		}
	}

	if dErrors.ToHTTPStatus(code) >= http.StatusInternalServerError && h.logger != nil {
		h.logger.ErrorContext(r.Context(), "request failed", "code", code, "error", err)
	}

	h.writeJSON(w, dErrors.ToHTTPStatus(code), resp)
}
