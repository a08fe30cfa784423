package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/handler/dto"
	"github.com/penletter/penletter/internal/middleware"
	"github.com/penletter/penletter/internal/secret"
	"github.com/penletter/penletter/internal/service"
)

// SessionManager creates and destroys operator sessions.
type SessionManager interface {
	CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// UserDirectory resolves user IDs to display names.
type UserDirectory interface {
	GetUsername(ctx context.Context, userID string) (string, error)
}

// SessionHandlerConfig holds the session handler dependencies.
type SessionHandlerConfig struct {
	Verifier     service.CredentialVerifier
	Sessions     SessionManager
	Users        UserDirectory
	SessionTTL   time.Duration
	SecureCookie bool
	Logger       *slog.Logger
}

// SessionHandler handles login, logout and the admin dashboard.
type SessionHandler struct {
	verifier     service.CredentialVerifier
	sessions     SessionManager
	users        UserDirectory
	sessionTTL   time.Duration
	secureCookie bool
	logger       *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(cfg SessionHandlerConfig) *SessionHandler {
	return &SessionHandler{
		verifier:     cfg.Verifier,
		sessions:     cfg.Sessions,
		users:        cfg.Users,
		sessionTTL:   cfg.SessionTTL,
		secureCookie: cfg.SecureCookie,
		logger:       cfg.Logger.With("component", "handler.session"),
	}
}

// Login handles POST /login.
// A successful login always starts a fresh session; any session cookie the
// client already had is discarded.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var form dto.LoginForm
	if err := decodeForm(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
		return
	}

	creds := auth.Credentials{Username: form.Username, Password: secret.New(form.Password)}
	userID, err := h.verifier.Verify(r.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "Authentication failed")
			return
		}
		writeInternalError(w, h.logger, "login failed", err)
		return
	}

	if old, err := r.Cookie(middleware.SessionCookieName); err == nil && old.Value != "" {
		if err := h.sessions.DeleteSession(r.Context(), old.Value); err != nil {
			h.logger.Warn("failed to drop previous session", slog.String("error", err.Error()))
		}
	}

	sessionID, err := h.sessions.CreateSession(r.Context(), userID, h.sessionTTL)
	if err != nil {
		writeInternalError(w, h.logger, "failed to create session", err)
		return
	}

	http.SetCookie(w, h.sessionCookie(sessionID, int(h.sessionTTL.Seconds())))
	h.logger.Info("operator logged in", slog.String("user_id", userID))

	writeJSON(w, http.StatusOK, dto.LoginResponse{UserID: userID})
}

// Logout handles POST /admin/logout.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil && c.Value != "" {
		if err := h.sessions.DeleteSession(r.Context(), c.Value); err != nil {
			writeInternalError(w, h.logger, "failed to delete session", err)
			return
		}
	}

	http.SetCookie(w, h.sessionCookie("", -1))
	h.logger.Info("operator logged out", slog.String("user_id", auth.UserIDFromContext(r.Context())))

	http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
}

// Dashboard handles GET /admin/dashboard.
func (h *SessionHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserIDFromContext(r.Context())

	username, err := h.users.GetUsername(r.Context(), userID)
	if err != nil {
		writeInternalError(w, h.logger, "failed to load username", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DashboardResponse{Username: username})
}

func (h *SessionHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
