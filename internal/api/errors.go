package api

import (
	"errors"
	"fmt"
)

// Error variables for the authentication flow.
var (
	// ErrAuthFailed indicates bad credentials, or a request that was still
	// unauthorized after a successful token refresh.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrSessionExpired indicates the refresh itself failed. It is handled
	// centrally (credentials cleared, user sent back to login) and call
	// sites should not treat it as recoverable.
	ErrSessionExpired = errors.New("session expired")
)

// RequestError represents a non-success backend response outside the
// authorization flow. Detail carries the backend's human-readable message.
type RequestError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// NetworkError represents a transport failure where no response was received.
type NetworkError struct {
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is (or wraps) a transport failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
