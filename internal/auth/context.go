package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const userIDContextKey contextKey = "user_id"

// ContextWithUserID adds the authenticated user ID to the context.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the authenticated user ID.
// Returns empty string if not authenticated.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDContextKey).(string)
	return userID
}

// MustUserIDFromContext returns the authenticated user ID.
// Panics if not present (use only when session middleware has run).
func MustUserIDFromContext(ctx context.Context) string {
	userID := UserIDFromContext(ctx)
	if userID == "" {
		panic("user id not found in context - ensure session middleware is applied")
	}
	return userID
}
