// Package idempotency guards operator actions against duplicate submission.
package idempotency

import (
	"errors"
	"unicode/utf8"
)

// MaxKeyLength is the exclusive upper bound on key length, in characters.
const MaxKeyLength = 50

// Key validation errors.
var (
	ErrKeyEmpty   = errors.New("idempotency key cannot be empty")
	ErrKeyTooLong = errors.New("idempotency key must be shorter than 50 characters")
)

// Key is a validated idempotency token supplied by the client.
// NewKey is the only way to build one; holders never re-validate it.
type Key struct {
	value string
}

// NewKey validates raw and wraps it verbatim. No trimming or normalization
// is applied, so "abc" and " abc" are different keys.
func NewKey(raw string) (Key, error) {
	if raw == "" {
		return Key{}, ErrKeyEmpty
	}
	if utf8.RuneCountInString(raw) >= MaxKeyLength {
		return Key{}, ErrKeyTooLong
	}
	return Key{value: raw}, nil
}

// String returns the key text.
func (k Key) String() string {
	return k.value
}
