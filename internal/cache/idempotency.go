package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/idempotency"
)

const (
	// idempotencyPrefix is the Redis key prefix for the idempotency ledger.
	idempotencyPrefix = "idempotency:"
	// maxPendingTTL caps how long a crashed request can block its key.
	maxPendingTTL = 15 * time.Minute

	statePending   = "pending"
	stateCompleted = "completed"
)

type ledgerEntry struct {
	State    string                `json:"state"`
	Response *idempotency.Response `json:"response,omitempty"`
}

func ledgerKey(scope string, key idempotency.Key) string {
	return idempotencyPrefix + scope + ":" + auth.QuickHash(key.String())
}

// Reserve implements idempotency.Ledger with SET NX.
func (c *Cache) Reserve(ctx context.Context, scope string, key idempotency.Key, ttl time.Duration) (*idempotency.Response, error) {
	redisKey := ledgerKey(scope, key)
	pending, err := json.Marshal(ledgerEntry{State: statePending})
	if err != nil {
		return nil, fmt.Errorf("marshal pending entry: %w", err)
	}

	pendingTTL := maxPendingTTL
	if ttl > 0 && ttl < pendingTTL {
		pendingTTL = ttl
	}

	// Two attempts: the existing entry may expire between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := c.client.SetNX(ctx, redisKey, pending, pendingTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return nil, nil
		}

		data, err := c.client.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read idempotency entry: %w", err)
		}

		var entry ledgerEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("decode idempotency entry: %w", err)
		}
		if entry.State == stateCompleted && entry.Response != nil {
			return entry.Response, nil
		}
		return nil, idempotency.ErrInProgress
	}

	return nil, idempotency.ErrInProgress
}

// Complete implements idempotency.Ledger.
func (c *Cache) Complete(ctx context.Context, scope string, key idempotency.Key, resp idempotency.Response, ttl time.Duration) error {
	data, err := json.Marshal(ledgerEntry{State: stateCompleted, Response: &resp})
	if err != nil {
		return fmt.Errorf("marshal completed entry: %w", err)
	}
	if err := c.client.Set(ctx, ledgerKey(scope, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("save idempotent response: %w", err)
	}
	return nil
}

// Release implements idempotency.Ledger.
func (c *Cache) Release(ctx context.Context, scope string, key idempotency.Key) error {
	if err := c.client.Del(ctx, ledgerKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
