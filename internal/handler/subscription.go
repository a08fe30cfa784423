package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/penletter/penletter/internal/handler/dto"
	"github.com/penletter/penletter/internal/service"
)

// SubscriptionService is the subscription use case.
type SubscriptionService interface {
	Subscribe(ctx context.Context, name, email string) error
	Confirm(ctx context.Context, token string) error
}

// SubscriptionHandler handles sign-up and confirmation.
type SubscriptionHandler struct {
	svc    SubscriptionService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(svc SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		svc:    svc,
		logger: logger.With("component", "handler.subscription"),
	}
}

// Subscribe handles POST /subscriptions.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var form dto.SubscribeForm
	if err := decodeForm(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
		return
	}

	if err := h.svc.Subscribe(r.Context(), form.Name, form.Email); err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Check your inbox to confirm your subscription"})
}

// Confirm handles GET /subscriptions/confirm?subscription_token=...
func (h *SubscriptionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("subscription_token")

	if err := h.svc.Confirm(r.Context(), token); err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Subscription confirmed"})
}

// handleServiceError maps service errors to HTTP responses.
func (h *SubscriptionHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSubscriber):
		writeError(w, http.StatusBadRequest, "INVALID_SUBSCRIBER", err.Error())
	case errors.Is(err, service.ErrAlreadySubscribed):
		writeError(w, http.StatusConflict, "ALREADY_SUBSCRIBED", "Email already subscribed")
	case errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "INVALID_TOKEN", "Missing or malformed subscription token")
	case errors.Is(err, service.ErrUnknownToken):
		writeError(w, http.StatusUnauthorized, "UNKNOWN_TOKEN", "Unknown subscription token")
	default:
		writeInternalError(w, h.logger, "subscription request failed", err)
	}
}
