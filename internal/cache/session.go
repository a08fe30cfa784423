package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/penletter/penletter/internal/auth"
)

const (
	// sessionPrefix is the Redis key prefix for operator sessions.
	sessionPrefix = "session:"
	// DefaultSessionTTL applies when no TTL is configured.
	DefaultSessionTTL = 12 * time.Hour
)

// Session is the server-side state behind a session cookie.
type Session struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// sessionKey stores sessions under a hash of the ID so a Redis dump does
// not contain usable cookies.
func sessionKey(sessionID string) string {
	return sessionPrefix + auth.QuickHash(sessionID)
}

// CreateSession stores a new session for userID and returns its ID.
func (c *Cache) CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	sessionID, err := auth.GenerateSessionID()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(Session{UserID: userID, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	if err := c.client.Set(ctx, sessionKey(sessionID), data, ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	return sessionID, nil
}

// GetSession retrieves a session by ID.
// Returns nil if not found or expired.
func (c *Cache) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if !auth.ValidSessionID(sessionID) {
		return nil, nil
	}

	data, err := c.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil || s.UserID == "" {
		// Corrupted entry - treat as logged out
		return nil, nil //nolint:nilerr
	}

	return &s, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (c *Cache) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return c.client.Del(ctx, sessionKey(sessionID)).Err()
}
