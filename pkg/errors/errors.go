package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRows indicates that a batch was submitted with an empty row set
	ErrNoRows = errors.New("batch contains no rows")

	// ErrInvalidConcurrency indicates that the requested concurrency is zero or negative
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")

	// ErrNilEndpoint indicates that no scoring endpoint was provided
	ErrNilEndpoint = errors.New("scoring endpoint cannot be nil")

	// ErrDuplicateRow indicates that two results were collected for the same row index.
	// This is an internal consistency failure, not a business outcome.
	ErrDuplicateRow = errors.New("duplicate result for row index")

	// ErrResultCountMismatch indicates that the number of collected results does not
	// match the number of submitted rows. Internal consistency failure.
	ErrResultCountMismatch = errors.New("result count does not match row count")

	// ErrNotConnected indicates that the NATS scoring endpoint is not connected
	ErrNotConnected = errors.New("not connected to NATS")

	// ErrScriptInterrupted indicates that a scoring script was interrupted before completion
	ErrScriptInterrupted = errors.New("scoring script interrupted")

	// ErrTokenRefreshFailed indicates that the HTTP endpoint could not refresh its bearer token
	ErrTokenRefreshFailed = errors.New("token refresh failed")
)

// Error represents a structured runner error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured runner error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsConsistencyFailure checks if an error indicates a broken internal invariant.
// These errors point at a bug in the cursor or collector logic and must never
// be swallowed.
func IsConsistencyFailure(err error) bool {
	return errors.Is(err, ErrDuplicateRow) || errors.Is(err, ErrResultCountMismatch)
}

// IsInvalidBatch checks if an error indicates invalid batch arguments rejected
// before any work started
func IsInvalidBatch(err error) bool {
	return errors.Is(err, ErrNoRows) || errors.Is(err, ErrInvalidConcurrency) || errors.Is(err, ErrNilEndpoint)
}
