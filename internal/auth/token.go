package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

const (
	// SubscriptionTokenLen is the length of a confirmation token.
	SubscriptionTokenLen = 25
	// sessionIDBytes is the entropy of a session ID (hex encoded to 64 chars).
	sessionIDBytes = 32

	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	subscriptionTokenRegex = regexp.MustCompile(`^[A-Za-z0-9]{25}$`)
	sessionIDRegex         = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// GenerateSubscriptionToken returns a random alphanumeric confirmation token.
func GenerateSubscriptionToken() (string, error) {
	// Bytes at or above maxByte are rejected so each symbol is uniform.
	const maxByte = 256 - 256%len(tokenAlphabet)

	token := make([]byte, 0, SubscriptionTokenLen)
	buf := make([]byte, SubscriptionTokenLen*2)
	for len(token) < SubscriptionTokenLen {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate subscription token: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			token = append(token, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(token) == SubscriptionTokenLen {
				break
			}
		}
	}
	return string(token), nil
}

// ValidSubscriptionToken checks if token has the confirmation token format.
func ValidSubscriptionToken(token string) bool {
	return subscriptionTokenRegex.MatchString(token)
}

// GenerateSessionID returns a random opaque session identifier.
func GenerateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidSessionID checks if id has the session identifier format.
func ValidSessionID(id string) bool {
	return sessionIDRegex.MatchString(id)
}
