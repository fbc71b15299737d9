package courier

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes used by the courier integration.
const (
	CodeValidation = "VALIDATION"
	CodeRejected   = "REJECTED"
	CodeAuth       = "AUTH"
	CodeNotFound   = "NOT_FOUND"
	CodeTransport  = "TRANSPORT"
)

// Error represents a failure from the courier integration.
type Error struct {
	Code      string
	Message   string
	Fields    map[string]string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("expedo error (%s): %s", e.Code, e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		msg += " [" + strings.Join(parts, "; ") + "]"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is by comparing error codes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new courier Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithField records a per-field violation message.
func (e *Error) WithField(field, message string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Sentinel errors for common provider outcomes.
var (
	// ErrAWBNotFound indicates the provider has no record of the AWB.
	ErrAWBNotFound = &Error{Code: CodeNotFound, Message: "awb not found"}

	// ErrAuthFailed indicates the login exchange was rejected.
	ErrAuthFailed = &Error{Code: CodeAuth, Message: "authentication failed"}
)

// IsNotFound reports whether err is the provider's "no record" answer.
// The provider does not expose a stable machine-readable code for this,
// so a substring check over the message backs up the sentinel match.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAWBNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pat := range []string{"not found", "nu exista", "no result"} {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}

// IsRetryable returns true if the error is safe to retry on a later run.
func IsRetryable(err error) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Retryable
	}
	// Unknown failures (timeouts, broken connections) are transient by
	// default; only classified provider answers are terminal.
	return true
}
