package billing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trustgate/internal/verification/models"
	dErrors "trustgate/pkg/domain-errors"
	"trustgate/pkg/requestcontext"
)

// SignatureHeader carries the webhook HMAC.
const SignatureHeader = "X-Checkout-Signature"

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the authenticated billing routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/billing/packs", h.HandlePacks)
	r.Get("/balance", h.HandleBalance)
}

// RegisterWebhooks mounts the payment-provider callback. Separate from
// Register because webhooks authenticate by signature, not bearer token.
func (h *Handler) RegisterWebhooks(r chi.Router) {
	r.Post("/webhooks/checkout", h.HandleCheckoutWebhook)
}

func (h *Handler) HandlePacks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Packs())
}

func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requestcontext.AccountID(r.Context())
	if !ok {
		h.writeError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	credits, err := h.service.Balance(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BalanceResponse{Credits: credits})
}

func (h *Handler) HandleCheckoutWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, dErrors.New(dErrors.CodeInvalidInput, "unreadable request body"))
		return
	}

	if !h.service.VerifySignature(body, r.Header.Get(SignatureHeader)) {
		h.writeError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid webhook signature"))
		return
	}

	var event CheckoutEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.writeError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed webhook payload"))
		return
	}

	if err := h.service.HandleCheckout(r.Context(), event); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && h.logger != nil {
		h.logger.Error("write response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	h.writeJSON(w, dErrors.ToHTTPStatus(code), models.ErrorResponse{
		Error: dErrors.MessageOf(err),
		Code:  string(code),
	})
}
