// Package secret provides a string wrapper for values that must never be logged.
package secret

import (
	"fmt"
	"log/slog"
)

// Redacted is the placeholder printed instead of a secret value.
const Redacted = "[REDACTED]"

// String holds a sensitive value such as a password or a password hash.
// Every formatting path (fmt verbs, slog, JSON) prints Redacted.
// The underlying text is only reachable through Expose.
type String struct {
	value string
}

// New wraps a sensitive value.
func New(value string) String {
	return String{value: value}
}

// Expose returns the underlying text.
// Callers must not log or persist the result outside of storage layers.
func (s String) Expose() string {
	return s.value
}

// IsEmpty reports whether the wrapped value is empty.
func (s String) IsEmpty() bool {
	return s.value == ""
}

// String implements fmt.Stringer.
func (s String) String() string {
	return Redacted
}

// GoString implements fmt.GoStringer so %#v is redacted too.
func (s String) GoString() string {
	return "secret.String(" + Redacted + ")"
}

// Format implements fmt.Formatter. It covers %v, %+v, %s, %q and %x.
func (s String) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('#') {
			_, _ = fmt.Fprint(f, s.GoString())
			return
		}
		_, _ = fmt.Fprint(f, Redacted)
	case 'q':
		_, _ = fmt.Fprintf(f, "%q", Redacted)
	default:
		_, _ = fmt.Fprint(f, Redacted)
	}
}

// LogValue implements slog.LogValuer.
func (s String) LogValue() slog.Value {
	return slog.StringValue(Redacted)
}

// MarshalJSON keeps secrets out of JSON encodings.
func (s String) MarshalJSON() ([]byte, error) {
	return []byte(`"` + Redacted + `"`), nil
}

// MarshalText keeps secrets out of text encodings.
func (s String) MarshalText() ([]byte, error) {
	return []byte(Redacted), nil
}

// UnmarshalText lets configuration loaders populate a String directly.
func (s *String) UnmarshalText(text []byte) error {
	s.value = string(text)
	return nil
}
