package auth

import (
	"context"
	"errors"

	"github.com/penletter/penletter/internal/secret"
)

var (
	// ErrInvalidCredentials means the username is unknown or the password
	// does not match. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnexpected wraps storage faults, corrupt stored hashes and hashing
	// worker failures. Callers map it to a 5xx response.
	ErrUnexpected = errors.New("unexpected authentication failure")
	// ErrUnauthenticated means no usable credentials were presented.
	ErrUnauthenticated = errors.New("missing credentials")
)

// Credentials is a request-scoped username and password pair.
type Credentials struct {
	Username string
	Password secret.String
}

// StoredCredential is what the store returns for a known username.
type StoredCredential struct {
	UserID       string
	PasswordHash secret.String // PHC string
}

// CredentialStore looks up stored credentials by username.
// A missing user is reported with found == false and a nil error.
type CredentialStore interface {
	LookupCredentials(ctx context.Context, username string) (cred StoredCredential, found bool, err error)
}
