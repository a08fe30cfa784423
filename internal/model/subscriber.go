package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending_confirmation"
	SubscriptionConfirmed SubscriptionStatus = "confirmed"
)

const (
	// MaxSubscriberNameLength is counted in characters, not bytes.
	MaxSubscriberNameLength = 256
	// MaxSubscriberEmailLength follows the SMTP path limit.
	MaxSubscriberEmailLength = 254

	forbiddenNameChars = `/()"<>\{}`
)

var (
	// ErrInvalidEmail indicates the address is not a usable email address.
	ErrInvalidEmail = errors.New("invalid subscriber email")
	// ErrInvalidName indicates the subscriber name failed validation.
	ErrInvalidName = errors.New("invalid subscriber name")

	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// SubscriberEmail is an address that passed ParseSubscriberEmail.
type SubscriberEmail struct {
	value string
}

// ParseSubscriberEmail validates raw as an email address.
func ParseSubscriberEmail(raw string) (SubscriberEmail, error) {
	if raw == "" {
		return SubscriberEmail{}, fmt.Errorf("%w: empty", ErrInvalidEmail)
	}
	if len(raw) > MaxSubscriberEmailLength {
		return SubscriberEmail{}, fmt.Errorf("%w: longer than %d bytes", ErrInvalidEmail, MaxSubscriberEmailLength)
	}
	if strings.Contains(raw, "..") || !emailRegex.MatchString(raw) {
		return SubscriberEmail{}, fmt.Errorf("%w: %q is not a valid address", ErrInvalidEmail, RedactEmail(raw))
	}
	return SubscriberEmail{value: raw}, nil
}

// String returns the address.
func (e SubscriberEmail) String() string {
	return e.value
}

// SubscriberName is a display name that passed ParseSubscriberName.
type SubscriberName struct {
	value string
}

// ParseSubscriberName rejects blank names, names longer than
// MaxSubscriberNameLength characters and names containing any of /()"<>\{}.
func ParseSubscriberName(raw string) (SubscriberName, error) {
	if strings.TrimSpace(raw) == "" {
		return SubscriberName{}, fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(raw) > MaxSubscriberNameLength {
		return SubscriberName{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxSubscriberNameLength)
	}
	if strings.ContainsAny(raw, forbiddenNameChars) {
		return SubscriberName{}, fmt.Errorf("%w: contains one of %s", ErrInvalidName, forbiddenNameChars)
	}
	return SubscriberName{value: raw}, nil
}

// String returns the name.
func (n SubscriberName) String() string {
	return n.value
}

// NewSubscriber is a validated subscription request.
type NewSubscriber struct {
	Email SubscriberEmail
	Name  SubscriberName
}

// Subscriber is a stored subscription.
type Subscriber struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	Name         string             `json:"name"`
	Status       SubscriptionStatus `json:"status"`
	SubscribedAt time.Time          `json:"subscribed_at"`
}

// ConfirmedSubscriber is a subscriber whose stored address parsed cleanly.
type ConfirmedSubscriber struct {
	Email SubscriberEmail
}

// SubscriberRecord is one row returned by a subscriber directory. Exactly
// one of Subscriber and Err is meaningful: a row whose stored address no
// longer validates carries the raw value and the parse error instead.
type SubscriberRecord struct {
	Subscriber ConfirmedSubscriber
	Raw        string
	Err        error
}

// NewSubscriberRecord parses a stored address into a record.
// Parse failures are kept in the record rather than returned.
func NewSubscriberRecord(rawEmail string) SubscriberRecord {
	email, err := ParseSubscriberEmail(rawEmail)
	if err != nil {
		return SubscriberRecord{Raw: rawEmail, Err: err}
	}
	return SubscriberRecord{Subscriber: ConfirmedSubscriber{Email: email}, Raw: rawEmail}
}

// Valid reports whether the record holds a usable subscriber.
func (r SubscriberRecord) Valid() bool {
	return r.Err == nil
}

// RedactEmail masks the local part of an address for logs.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
