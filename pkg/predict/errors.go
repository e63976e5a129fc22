package predict

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrTransport is returned for network failures and non-2xx responses.
	ErrTransport = errors.New("predict: transport error")

	// ErrMalformedResponse is returned when the body is not a valid prediction.
	ErrMalformedResponse = errors.New("predict: malformed response")

	// ErrEmptyImage is returned when Predict is called without image data.
	ErrEmptyImage = errors.New("predict: empty image")
)

// APIError is a non-2xx response from the inference service.
// It matches ErrTransport with errors.Is.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the "error" field of the body, or the raw body.
	Message string

	// Path is the request path that failed.
	Path string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("predict: %s returned HTTP %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("predict: %s returned HTTP %d: %s", e.Path, e.StatusCode, e.Message)
}

// Is makes APIError match ErrTransport.
func (e *APIError) Is(target error) bool {
	return target == ErrTransport
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// transportError wraps a network failure so it matches ErrTransport
// while keeping the cause reachable.
type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("predict: %s: %v", e.op, e.err)
}

func (e *transportError) Unwrap() []error {
	return []error{ErrTransport, e.err}
}

func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &transportError{op: op, err: err}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
