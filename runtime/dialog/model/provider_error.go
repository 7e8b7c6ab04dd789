package model

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies provider failures for retry and fallback
// decisions.
type ProviderErrorKind string

const (
	// KindAuth marks authentication and authorization failures.
	KindAuth ProviderErrorKind = "auth"
	// KindInvalidRequest marks requests that will not succeed unchanged.
	KindInvalidRequest ProviderErrorKind = "invalid_request"
	// KindRateLimited marks provider throttling.
	KindRateLimited ProviderErrorKind = "rate_limited"
	// KindUnavailable marks transient failures where a retry may succeed.
	KindUnavailable ProviderErrorKind = "unavailable"
	// KindUnknown marks unclassified failures.
	KindUnknown ProviderErrorKind = "unknown"
)

// ErrRateLimited is matched by errors.Is against any rate-limit failure,
// whichever provider produced it.
var ErrRateLimited = errors.New("model: rate limited")

// ProviderError is a structured provider failure. It crosses package
// boundaries so the engine can branch on stable information instead of
// provider SDK error types.
type ProviderError struct {
	provider  string
	operation string
	status    int
	kind      ProviderErrorKind
	message   string
	retryable bool
	cause     error
}

// NewProviderError builds a ProviderError. Provider and kind are required.
func NewProviderError(provider, operation string, status int, kind ProviderErrorKind, message string, retryable bool, cause error) *ProviderError {
	if provider == "" {
		panic("model: provider is required")
	}
	if kind == "" {
		panic("model: provider error kind is required")
	}
	return &ProviderError{
		provider:  provider,
		operation: operation,
		status:    status,
		kind:      kind,
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}

// Provider returns the provider identifier, for example "anthropic".
func (e *ProviderError) Provider() string { return e.provider }

// Operation returns the provider operation when known.
func (e *ProviderError) Operation() string { return e.operation }

// HTTPStatus returns the HTTP status when available, otherwise 0.
func (e *ProviderError) HTTPStatus() int { return e.status }

// Kind returns the failure classification.
func (e *ProviderError) Kind() ProviderErrorKind { return e.kind }

// Retryable reports whether retrying unchanged may succeed.
func (e *ProviderError) Retryable() bool { return e.retryable }

func (e *ProviderError) Error() string {
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	if e.status > 0 {
		return fmt.Sprintf("%s %s (%s %d): %s", e.provider, e.kind, e.operation, e.status, msg)
	}
	return fmt.Sprintf("%s %s (%s): %s", e.provider, e.kind, e.operation, msg)
}

// Unwrap preserves the original error chain.
func (e *ProviderError) Unwrap() error { return e.cause }

// Is lets errors.Is(err, ErrRateLimited) match throttling failures.
func (e *ProviderError) Is(target error) bool {
	return target == ErrRateLimited && e.kind == KindRateLimited
}

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRateLimited reports whether err's chain contains a rate-limit failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
