package auth

import (
	"fmt"
	"net/http"

	"github.com/penletter/penletter/internal/secret"
)

// CredentialsFromRequest extracts Basic credentials from the Authorization
// header. A missing or malformed header, or an empty username, yields an
// error wrapping ErrUnauthenticated.
func CredentialsFromRequest(r *http.Request) (Credentials, error) {
	if r.Header.Get("Authorization") == "" {
		return Credentials{}, fmt.Errorf("%w: authorization header missing", ErrUnauthenticated)
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		return Credentials{}, fmt.Errorf("%w: authorization header is not valid basic credentials", ErrUnauthenticated)
	}
	if username == "" {
		return Credentials{}, fmt.Errorf("%w: username must be provided", ErrUnauthenticated)
	}

	return Credentials{
		Username: username,
		Password: secret.New(password),
	}, nil
}
