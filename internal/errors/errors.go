// Package errors provides domain-specific error types for sharerelay.
//
// These types carry structured context (operation, address, command,
// retryability) so callers can decide how to handle a failure and so
// the control protocol can turn a failure into a reply line.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────
//
// The text of the protocol sentinels is what a client sees after
// LOGIN_FAILED / SHARE_FAILED / VIEW_DENIED.

var (
	ErrMalformed       = errors.New("malformed command")
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrEmptySecret     = errors.New("share password required")
	ErrNoShare         = errors.New("share not found")
	ErrSecretMismatch  = errors.New("wrong password")

	ErrShareClosed  = errors.New("share is closed")
	ErrNotConnected = errors.New("not connected")
	ErrCircuitOpen  = errors.New("circuit breaker is open")
	ErrTimeout      = errors.New("operation timed out")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username already exists")
	ErrInvitationInvalid  = errors.New("invalid invitation code")
	ErrInvitationUsed     = errors.New("invitation code already used")
	ErrInvitationExists   = errors.New("invitation code already exists")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrMissingField       = errors.New("all fields are required")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "listen", "accept", "write", "read"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError is a rejected control command.  It never terminates
// the session; Reason is the text written after the failure verb.
type ProtocolError struct {
	Command string // "LOGIN", "START_SHARE", "VIEW_SHARE", ...
	Reason  string
	Err     error // sentinel, when there is one
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// Protocol creates a ProtocolError whose reason is the sentinel's text.
func Protocol(command string, sentinel error) *ProtocolError {
	return &ProtocolError{Command: command, Reason: sentinel.Error(), Err: sentinel}
}

// ReasonOf returns the reply reason carried by err: the ProtocolError
// reason if there is one, otherwise err's own text.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return err.Error()
}

// SentinelFor returns the protocol sentinel whose text is reason, or
// nil.  Clients use it to turn a reply reason back into an error value.
func SentinelFor(reason string) error {
	for _, s := range []error{
		ErrMalformed, ErrNotLoggedIn, ErrAlreadyLoggedIn,
		ErrEmptySecret, ErrNoShare, ErrSecretMismatch,
	} {
		if s.Error() == reason {
			return s
		}
	}
	return nil
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsProtocol reports whether err is a rejected control command.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			// Refused dials are retried: the port may not be up yet.
			return true
		}
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use sharerelay/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
