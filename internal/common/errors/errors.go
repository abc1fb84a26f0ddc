// Package errors provides the standardized error taxonomy for the scraping
// and matching pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// ErrCodeFetchFailed covers transient network or upstream-site failures.
	// Retried up to the configured count, then surfaced to the caller.
	ErrCodeFetchFailed ErrorCode = "FETCH_FAILED"

	// ErrCodeAuthError covers credential and signature problems. Never
	// retried; halts the whole run since no subsequent call can succeed.
	ErrCodeAuthError ErrorCode = "AUTH_ERROR"

	// ErrCodeResourceLocked means the browser session lock is held by a
	// stale process. One automatic remediation attempt, then fatal.
	ErrCodeResourceLocked ErrorCode = "RESOURCE_LOCKED"

	// ErrCodeValidationError covers malformed or missing required fields.
	// The offending record is skipped, not fatal.
	ErrCodeValidationError ErrorCode = "VALIDATION_ERROR"

	// ErrCodeScrapeFailed covers scraper adapter failures after retries.
	ErrCodeScrapeFailed ErrorCode = "SCRAPE_FAILED"

	// ErrCodeSemanticCallFailed covers LLM scoring failures. The scorer
	// degrades to a default value, so this never propagates on its own.
	ErrCodeSemanticCallFailed ErrorCode = "SEMANTIC_CALL_FAILED"
)

// StandardError is a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewFetchFailedError creates a retryable fetch error.
func NewFetchFailedError(url string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFetchFailed,
		Message:   "Image or page fetch failed",
		Details:   fmt.Sprintf("url: %s, error: %s", url, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewClientFetchError creates a non-retryable fetch error for 4xx responses.
func NewClientFetchError(url string, status int) *StandardError {
	return &StandardError{
		Code:      ErrCodeFetchFailed,
		Message:   "Upstream rejected the fetch",
		Details:   fmt.Sprintf("url: %s, status: %d", url, status),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthError creates a non-retryable credential error.
func NewAuthError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthError,
		Message:   "Authentication or signature failure",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewResourceLockedError creates a fatal session-lock error.
func NewResourceLockedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceLocked,
		Message:   "Browser session lock could not be acquired",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable record validation error.
func NewValidationError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationError,
		Message:   fmt.Sprintf("Invalid or missing field '%s'", field),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewScrapeFailedError creates a retryable scraper error.
func NewScrapeFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeScrapeFailed,
		Message:   "Scraper call failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSemanticCallFailedError creates a retryable LLM scoring error.
func NewSemanticCallFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSemanticCallFailed,
		Message:   "Semantic similarity call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// RetryCount returns the recommended retry count per error code.
func RetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeFetchFailed:
		return 3
	case ErrCodeScrapeFailed:
		return 2
	case ErrCodeSemanticCallFailed:
		return 1
	default:
		return 0 // auth, lock and validation errors: no retry
	}
}

// IsRetryable reports whether an error may be retried. Unknown error types
// are treated as non-retryable.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// CodeOf extracts the error code, or empty for foreign errors.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// IsFatal reports whether the error must terminate the whole run rather
// than the current item.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case ErrCodeAuthError, ErrCodeResourceLocked:
		return true
	default:
		return false
	}
}
