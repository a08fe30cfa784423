package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// ErrInProgress is returned when the same key is still being executed.
var ErrInProgress = errors.New("request with this idempotency key is still in progress")

// Response is the saved outcome of an idempotent action, replayed verbatim
// on resubmission.
type Response struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Ledger records which keys have been processed and what they returned.
// Keys are namespaced by scope (the acting user) so two operators never
// collide on the same client-generated key.
type Ledger interface {
	// Reserve claims the key. It returns (nil, nil) when the caller now owns
	// the key, the saved response when the key already completed, and
	// ErrInProgress when another request holds the reservation.
	Reserve(ctx context.Context, scope string, key Key, ttl time.Duration) (*Response, error)
	// Complete stores the response for a reserved key.
	Complete(ctx context.Context, scope string, key Key, resp Response, ttl time.Duration) error
	// Release drops a reservation so the action can be retried.
	Release(ctx context.Context, scope string, key Key) error
}

// Guard runs actions at most once per (scope, key).
type Guard struct {
	ledger Ledger
	ttl    time.Duration
	logger *slog.Logger
}

// NewGuard creates a Guard. A non-positive ttl falls back to DefaultTTL.
func NewGuard(ledger Ledger, ttl time.Duration, logger *slog.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		ledger: ledger,
		ttl:    ttl,
		logger: logger.With("component", "idempotency.guard"),
	}
}

// Execute runs fn unless the key was already processed, in which case the
// saved response is returned with replayed set to true.
//
// If fn fails the reservation is released, so the caller may retry with the
// same key. If fn succeeds but the response cannot be saved, the fresh
// response is still returned: the action already took effect.
func (g *Guard) Execute(
	ctx context.Context,
	scope string,
	key Key,
	fn func(ctx context.Context) (Response, error),
) (resp Response, replayed bool, err error) {
	saved, err := g.ledger.Reserve(ctx, scope, key, g.ttl)
	if err != nil {
		if errors.Is(err, ErrInProgress) {
			return Response{}, false, err
		}
		return Response{}, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if saved != nil {
		g.logger.Info("replaying saved response", "scope", scope, "status_code", saved.StatusCode)
		return *saved, true, nil
	}

	// The ledger must be settled even if the client goes away mid-request.
	settleCtx := context.WithoutCancel(ctx)

	resp, err = fn(ctx)
	if err != nil {
		if relErr := g.ledger.Release(settleCtx, scope, key); relErr != nil {
			g.logger.Error("failed to release idempotency key", "scope", scope, "error", relErr)
		}
		return Response{}, false, err
	}

	if err := g.ledger.Complete(settleCtx, scope, key, resp, g.ttl); err != nil {
		g.logger.Error("failed to save idempotent response", "scope", scope, "error", err)
	}

	return resp, false, nil
}
