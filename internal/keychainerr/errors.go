// Package keychainerr defines the error kinds shared by every Keyring Core
// component. Callers distinguish failure modes with errors.As against
// *Error rather than matching on message strings.
package keychainerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a Keyring Core failure.
type Kind string

const (
	InvalidIdentifier    Kind = "INVALID_IDENTIFIER"
	NotFound             Kind = "NOT_FOUND"
	Duplicate            Kind = "DUPLICATE"
	MalformedCertificate Kind = "MALFORMED_CERTIFICATE"
	MalformedCiphertext  Kind = "MALFORMED_CIPHERTEXT"
	Tampered             Kind = "TAMPERED"
	PassphraseRequired   Kind = "PASSPHRASE_REQUIRED"
	BadPassphrase        Kind = "BAD_PASSPHRASE"
	WrongKey             Kind = "WRONG_KEY"
	RecipientUnusable    Kind = "RECIPIENT_UNUSABLE"
	NoRecipients         Kind = "NO_RECIPIENTS"
	SessionLost          Kind = "SESSION_LOST"
	BackendUnavailable   Kind = "BACKEND_UNAVAILABLE"
	InconsistentBundle   Kind = "INCONSISTENT_BUNDLE"
	TruncatedBundle      Kind = "TRUNCATED_BUNDLE"
	CorruptFraming       Kind = "CORRUPT_FRAMING"
	UnsupportedVersion   Kind = "UNSUPPORTED_VERSION"
	CapacityExceeded     Kind = "CAPACITY_EXCEEDED"
	Cancelled            Kind = "CANCELLED"
)

// Error is the concrete error type returned by every Keyring Core
// operation that can fail. Message is safe to surface to a caller;
// Cause, when present, is wrapped for diagnostics but never carries
// secret material (callers must not attach one that does).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error with no wrapped cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error that carries an underlying cause. The cause's
// own error string is included in Error(), so callers must never wrap
// an error whose message embeds secret bytes.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, format string, cause error, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of err, or the empty Kind if err is not a
// *Error (or wraps one).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
