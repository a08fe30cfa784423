package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/model"
	"github.com/penletter/penletter/internal/secret"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
)

// LookupCredentials returns the stored password hash for username.
// An unknown username yields found == false and a nil error.
func (r *Repository) LookupCredentials(ctx context.Context, username string) (auth.StoredCredential, bool, error) {
	query := `
		SELECT user_id, password_hash
		FROM users
		WHERE username = $1
	`

	var userID, hash string
	err := r.pool.QueryRow(ctx, query, username).Scan(&userID, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.StoredCredential{}, false, nil
		}
		return auth.StoredCredential{}, false, fmt.Errorf("failed to look up credentials: %w", err)
	}

	return auth.StoredCredential{
		UserID:       userID,
		PasswordHash: secret.New(hash),
	}, true, nil
}

// CreateUser inserts a new operator with an already hashed password.
func (r *Repository) CreateUser(ctx context.Context, user *model.User, passwordHash secret.String) error {
	query := `
		INSERT INTO users (user_id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		passwordHash.Expose(),
		user.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, "user_id", id)
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getUser(ctx, "username", username)
}

func (r *Repository) getUser(ctx context.Context, column, value string) (*model.User, error) {
	// column is always a constant from this file.
	query := `
		SELECT user_id, username, created_at
		FROM users
		WHERE ` + column + ` = $1
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, value).Scan(
		&user.ID,
		&user.Username,
		&user.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}

	return &user, nil
}

// GetUsername returns the username for a user ID.
func (r *Repository) GetUsername(ctx context.Context, userID string) (string, error) {
	user, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// UpdatePassword replaces the stored hash for userID.
func (r *Repository) UpdatePassword(ctx context.Context, userID string, passwordHash secret.String) error {
	query := `
		UPDATE users
		SET password_hash = $2
		WHERE user_id = $1
	`

	result, err := r.pool.Exec(ctx, query, userID, passwordHash.Expose())
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}
