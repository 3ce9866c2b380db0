// Package errors provides the structured error system for squadsync with error kinds, retry hints, and context.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a synchronization failure. Callers branch on Kind, never
// on error strings.
type Kind string

const (
	// KindConnectivity - no network and no usable cache; recoverable by
	// retrying once online
	KindConnectivity Kind = "CONNECTIVITY"

	// KindAuthentication - credential rejected (401); never retried and
	// never masked by stale cache data
	KindAuthentication Kind = "AUTHENTICATION"

	// KindRateLimited - 429 after the rate-limit retry budget is exhausted
	KindRateLimited Kind = "RATE_LIMITED"

	// KindServer - 5xx after exhausting retries
	KindServer Kind = "SERVER"

	// KindData - malformed or unexpected payload; retrying cannot fix it
	KindData Kind = "DATA"

	// KindUnknown - catch-all for unclassified transport failures
	KindUnknown Kind = "UNKNOWN"
)

// SyncError represents a structured synchronization error with context.
type SyncError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	// HTTPStatus is the last observed status code, when the failure came
	// from an HTTP response
	HTTPStatus int `json:"http_status,omitempty"`

	// Resource is the logical resource family the call was for
	Resource string `json:"resource,omitempty"`

	// RequestID correlates the error with the logical call that produced it
	RequestID string `json:"request_id,omitempty"`

	// Attempts is how many attempts were made before giving up
	Attempts int `json:"attempts,omitempty"`

	// Retryable hints whether repeating the call later could succeed
	Retryable bool `json:"retryable"`

	Timestamp time.Time `json:"timestamp"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Resource, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is matches two SyncErrors by Kind.
func (e *SyncError) Is(target error) bool {
	if t, ok := target.(*SyncError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new SyncError with kind-appropriate defaults.
func New(kind Kind, message string) *SyncError {
	return &SyncError{
		Kind:      kind,
		Message:   message,
		Retryable: retryableByDefault(kind),
		Timestamp: time.Now(),
	}
}

// Newf creates a new SyncError with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *SyncError {
	return New(kind, fmt.Sprintf(format, args...))
}

// FromStatus maps an HTTP status code to the error taxonomy.
func FromStatus(status int) *SyncError {
	var e *SyncError
	switch {
	case status == 401:
		e = New(KindAuthentication, "credential rejected")
	case status == 429:
		e = New(KindRateLimited, "rate limited by server")
	case status >= 500:
		e = Newf(KindServer, "server error (%d)", status)
	case status >= 400:
		e = Newf(KindData, "request rejected (%d)", status)
	default:
		e = Newf(KindUnknown, "unexpected status (%d)", status)
	}
	e.HTTPStatus = status
	return e
}

func retryableByDefault(kind Kind) bool {
	switch kind {
	case KindServer, KindRateLimited, KindUnknown, KindConnectivity:
		return true
	default:
		return false
	}
}

// WithCause sets the underlying cause
func (e *SyncError) WithCause(cause error) *SyncError {
	e.Cause = cause
	return e
}

// WithResource tags the error with the resource family it belongs to
func (e *SyncError) WithResource(resource string) *SyncError {
	e.Resource = resource
	return e
}

// WithRequestID tags the error with the originating request ID
func (e *SyncError) WithRequestID(id string) *SyncError {
	e.RequestID = id
	return e
}

// WithAttempts records how many attempts were made
func (e *SyncError) WithAttempts(n int) *SyncError {
	e.Attempts = n
	return e
}

// KindOf extracts the Kind from any error chain. Plain errors classify as
// KindUnknown.
func KindOf(err error) Kind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the error chain carries a retryable hint.
func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// As is a convenience wrapper that extracts a *SyncError from an error chain.
func As(err error) (*SyncError, bool) {
	var se *SyncError
	ok := errors.As(err, &se)
	return se, ok
}
