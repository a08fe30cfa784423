package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/handler/dto"
	"github.com/penletter/penletter/internal/secret"
	"github.com/penletter/penletter/internal/service"
)

// PasswordChanger is the change-password use case.
type PasswordChanger interface {
	ChangePassword(ctx context.Context, userID string, current, next, nextCheck secret.String) error
}

// PasswordHandler handles operator password changes.
type PasswordHandler struct {
	svc    PasswordChanger
	logger *slog.Logger
}

// NewPasswordHandler creates a new PasswordHandler.
func NewPasswordHandler(svc PasswordChanger, logger *slog.Logger) *PasswordHandler {
	return &PasswordHandler{
		svc:    svc,
		logger: logger.With("component", "handler.password"),
	}
}

// ChangePassword handles POST /admin/password.
func (h *PasswordHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())

	var form dto.ChangePasswordForm
	if err := decodeForm(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
		return
	}

	err := h.svc.ChangePassword(r.Context(), userID,
		secret.New(form.CurrentPassword),
		secret.New(form.NewPassword),
		secret.New(form.NewPasswordCheck),
	)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Your password has been changed"})
}

// handleServiceError maps service errors to HTTP responses.
func (h *PasswordHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrPasswordMismatch):
		writeError(w, http.StatusBadRequest, "PASSWORD_MISMATCH", "The two new passwords do not match")
	case errors.Is(err, service.ErrCurrentPasswordIncorrect):
		writeError(w, http.StatusBadRequest, "CURRENT_PASSWORD_INCORRECT", "The current password is incorrect")
	case errors.Is(err, service.ErrPasswordLength):
		writeError(w, http.StatusUnprocessableEntity, "PASSWORD_LENGTH", err.Error())
	case errors.Is(err, service.ErrWeakPassword):
		writeError(w, http.StatusUnprocessableEntity, "WEAK_PASSWORD", "The new password is too weak")
	default:
		writeInternalError(w, h.logger, "password change failed", err)
	}
}
