package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/penletter/penletter/internal/model"
)

// Common errors for subscriber repository operations.
var (
	ErrSubscriberExists   = errors.New("email already subscribed")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrTokenNotFound      = errors.New("subscription token not found")
)

// CreatePendingSubscriber stores a pending subscription and its confirmation
// token in one transaction. Returns the new subscriber ID.
func (r *Repository) CreatePendingSubscriber(ctx context.Context, sub model.NewSubscriber, token string) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	id := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO subscriptions (id, email, name, subscribed_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`, id, sub.Email.String(), sub.Name.String(), time.Now().UTC(), model.SubscriptionPending)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrSubscriberExists
		}
		return "", fmt.Errorf("failed to insert subscriber: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO subscription_tokens (subscription_token, subscriber_id)
		VALUES ($1, $2)
	`, token, id)
	if err != nil {
		return "", fmt.Errorf("failed to store subscription token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit subscription: %w", err)
	}

	return id, nil
}

// SubscriberIDByToken resolves a confirmation token to its subscriber.
func (r *Repository) SubscriberIDByToken(ctx context.Context, token string) (string, error) {
	query := `
		SELECT subscriber_id
		FROM subscription_tokens
		WHERE subscription_token = $1
	`

	var id string
	if err := r.pool.QueryRow(ctx, query, token).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("failed to get subscriber by token: %w", err)
	}

	return id, nil
}

// ConfirmSubscriber marks a subscription as confirmed. Confirming twice is
// not an error.
func (r *Repository) ConfirmSubscriber(ctx context.Context, subscriberID string) error {
	query := `
		UPDATE subscriptions
		SET status = $2
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, subscriberID, model.SubscriptionConfirmed)
	if err != nil {
		return fmt.Errorf("failed to confirm subscriber: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriberNotFound
	}

	return nil
}

// ConfirmedSubscribers returns every confirmed subscription in subscription
// order. A stored address that no longer validates becomes a record with
// Err set instead of failing the whole read.
func (r *Repository) ConfirmedSubscribers(ctx context.Context) ([]model.SubscriberRecord, error) {
	query := `
		SELECT email
		FROM subscriptions
		WHERE status = $1
		ORDER BY subscribed_at, id
	`

	rows, err := r.pool.Query(ctx, query, model.SubscriptionConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmed subscribers: %w", err)
	}
	defer rows.Close()

	records := []model.SubscriberRecord{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		records = append(records, model.NewSubscriberRecord(email))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscribers: %w", err)
	}

	return records, nil
}
