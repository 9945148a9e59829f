package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCategory defines the normalized failure taxonomy for upstream calls
type ErrorCategory string

const (
	// ErrorTimeout indicates the upstream took too long to respond or render
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the upstream returned invalid/malformed content
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorProviderOutage indicates the upstream is unavailable
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorNotFound indicates the requested record doesn't exist upstream
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// FetchError wraps upstream failures with normalized categorization
type FetchError struct {
	Category   ErrorCategory
	Op         string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Op, e.Category, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Underlying
}

// NewFetchError creates a normalized upstream error. Timeouts and outages are
// retryable; everything else is not.
func NewFetchError(category ErrorCategory, op, message string, underlying error) *FetchError {
	return &FetchError{
		Category:   category,
		Op:         op,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorTimeout || category == ErrorProviderOutage,
	}
}

// Classify wraps err as a FetchError, preserving an existing category and
// recognising deadline and network timeouts.
func Classify(op string, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if IsTimeout(err) {
		return NewFetchError(ErrorTimeout, op, "upstream timed out", err)
	}
	return NewFetchError(ErrorProviderOutage, op, "upstream request failed", err)
}

// IsTimeout reports whether err is a context deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// CategoryOf extracts the error category from an error
func CategoryOf(err error) ErrorCategory {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ErrorInternal
}
