package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBudgetExceeded = errors.New("budget exceeded")
	ErrInputTooLong   = errors.New("input exceeds provider maximum length")
)

// ValidationError marks a request rejected before any work started.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ProviderErrorKind classifies transient provider failures. Any of these
// triggers cross-provider fallback in the router.
type ProviderErrorKind string

const (
	ProviderRateLimited     ProviderErrorKind = "rate_limited"
	ProviderTimeout         ProviderErrorKind = "timeout"
	ProviderInvalidResponse ProviderErrorKind = "invalid_response"
	ProviderUnavailable     ProviderErrorKind = "unavailable"
)

// ProviderError wraps a single failed provider invocation.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a classified provider failure.
func NewProviderError(provider string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// GenerationFailedError aggregates the per-provider failures of an exhausted
// router invocation.
type GenerationFailedError struct {
	Operation string
	Attempts  []*ProviderError
}

func (e *GenerationFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%s)", attempt.Provider, attempt.Kind))
	}
	return fmt.Sprintf("%s generation failed on all providers: %s", e.Operation, strings.Join(parts, ", "))
}

// AsProviderError unwraps err into a ProviderError when possible.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
