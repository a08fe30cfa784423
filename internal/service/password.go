package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/secret"
)

const (
	// MinPasswordLength and MaxPasswordLength are counted in characters.
	MinPasswordLength = 12
	MaxPasswordLength = 128
	// minPasswordScore is the lowest accepted zxcvbn score (0-4).
	minPasswordScore = 3
)

// Password errors.
var (
	ErrPasswordMismatch         = errors.New("new passwords do not match")
	ErrCurrentPasswordIncorrect = errors.New("current password is incorrect")
	ErrPasswordLength           = fmt.Errorf("password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength)
	ErrWeakPassword             = errors.New("password is too weak")
)

// PasswordStore reads usernames and writes password hashes.
type PasswordStore interface {
	GetUsername(ctx context.Context, userID string) (string, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash secret.String) error
}

// PasswordService changes operator passwords.
type PasswordService struct {
	store    PasswordStore
	verifier CredentialVerifier
	pool     *auth.HashPool
	params   auth.Params
	logger   *slog.Logger
}

// NewPasswordService creates a new PasswordService hashing with
// auth.DefaultParams on pool.
func NewPasswordService(store PasswordStore, verifier CredentialVerifier, pool *auth.HashPool, logger *slog.Logger) *PasswordService {
	if pool == nil {
		pool = auth.NewHashPool(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordService{
		store:    store,
		verifier: verifier,
		pool:     pool,
		params:   auth.DefaultParams,
		logger:   logger.With("component", "service.password"),
	}
}

// ValidateNewPassword checks the length and strength policy. userInputs are
// penalised when they appear in the password (typically the username).
func ValidateNewPassword(password secret.String, userInputs ...string) error {
	n := utf8.RuneCountInString(password.Expose())
	if n < MinPasswordLength || n > MaxPasswordLength {
		return ErrPasswordLength
	}
	if zxcvbn.PasswordStrength(password.Expose(), userInputs).Score < minPasswordScore {
		return ErrWeakPassword
	}
	return nil
}

// ChangePassword replaces the password of userID after checking that the
// two new entries match and the current password is correct.
func (s *PasswordService) ChangePassword(ctx context.Context, userID string, current, next, nextCheck secret.String) error {
	if next.Expose() != nextCheck.Expose() {
		return ErrPasswordMismatch
	}

	username, err := s.store.GetUsername(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load username: %w", err)
	}

	if _, err := s.verifier.Verify(ctx, auth.Credentials{Username: username, Password: current}); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return ErrCurrentPasswordIncorrect
		}
		return err
	}

	if err := ValidateNewPassword(next, username); err != nil {
		return err
	}

	var (
		hash    string
		hashErr error
	)
	if err := s.pool.Do(ctx, func() {
		hash, hashErr = auth.HashPasswordWithParams(next.Expose(), s.params)
	}); err != nil {
		return err
	}
	if hashErr != nil {
		return fmt.Errorf("failed to hash password: %w", hashErr)
	}

	if err := s.store.UpdatePassword(ctx, userID, secret.New(hash)); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}

	s.logger.Info("password changed", slog.String("user_id", userID))
	return nil
}
