package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/cache"
)

const (
	// SessionCookieName holds the opaque session ID.
	SessionCookieName = "session_id"
	// LoginPath is where unauthenticated admin requests are sent.
	LoginPath = "/login"
)

// SessionStore resolves session IDs. A nil session without error means
// the ID is unknown or expired.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*cache.Session, error)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger   *slog.Logger
	Sessions SessionStore
}

// RequireSession returns a middleware that admits only requests carrying a
// live operator session. The user ID is injected into the request context.
// Requests without one are redirected to the login page.
func RequireSession(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}

			session, err := cfg.Sessions.GetSession(r.Context(), cookie.Value)
			if err != nil {
				cfg.Logger.Error("session lookup failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				return
			}

			if session == nil || session.UserID == "" {
				cfg.Logger.Info("session rejected",
					slog.String("reason", "unknown_session"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}

			annotateUserID(r.Context(), session.UserID)
			ctx := auth.ContextWithUserID(r.Context(), session.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
