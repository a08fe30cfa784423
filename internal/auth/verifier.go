package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/penletter/penletter/internal/metrics"
)

// dummyHash is compared against when the username is unknown, so a miss
// costs the same as a hit. Computed once on first use.
var dummyHash = sync.OnceValues(func() (string, error) {
	return HashPassword(rand.Text())
})

// Verifier authenticates Credentials against a CredentialStore without
// revealing through response time whether the username exists.
type Verifier struct {
	store   CredentialStore
	pool    *HashPool
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewVerifier creates a Verifier. A nil pool gets GOMAXPROCS slots.
func NewVerifier(store CredentialStore, pool *HashPool, logger *slog.Logger, recorder metrics.Recorder) *Verifier {
	if pool == nil {
		pool = NewHashPool(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Verifier{
		store:   store,
		pool:    pool,
		logger:  logger.With("component", "auth.verifier"),
		metrics: recorder,
	}
}

// Verify returns the user ID for valid credentials.
//
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials
// after a full hash comparison. Store faults, unparseable stored hashes
// and hash pool failures yield an error wrapping ErrUnexpected.
func (v *Verifier) Verify(ctx context.Context, creds Credentials) (string, error) {
	stored, found, err := v.store.LookupCredentials(ctx, creds.Username)
	if err != nil {
		v.metrics.IncAuthAttempt("error")
		return "", fmt.Errorf("%w: lookup credentials: %w", ErrUnexpected, err)
	}

	var userID, encodedHash string
	if found {
		userID = stored.UserID
		encodedHash = stored.PasswordHash.Expose()
	} else {
		encodedHash, err = dummyHash()
		if err != nil {
			v.metrics.IncAuthAttempt("error")
			return "", fmt.Errorf("%w: compute dummy hash: %w", ErrUnexpected, err)
		}
	}

	var (
		match     bool
		verifyErr error
	)
	start := time.Now()
	err = v.pool.Do(ctx, func() {
		match, verifyErr = VerifyPassword(creds.Password.Expose(), encodedHash)
	})
	v.metrics.ObserveHashDuration(time.Since(start))
	if err != nil {
		v.metrics.IncAuthAttempt("error")
		return "", err
	}
	if verifyErr != nil {
		v.metrics.IncAuthAttempt("error")
		return "", fmt.Errorf("%w: verify stored hash: %w", ErrUnexpected, verifyErr)
	}

	// A dummy-path match is still a failure.
	if !match || userID == "" {
		v.metrics.IncAuthAttempt("invalid")
		v.logger.Info("authentication failed", slog.String("username", creds.Username))
		return "", ErrInvalidCredentials
	}

	v.metrics.IncAuthAttempt("success")
	return userID, nil
}
