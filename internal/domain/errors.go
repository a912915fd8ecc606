package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions.
var (
	// ErrAuthFailed indicates the source rejected our credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrMalformedResponse indicates the source returned a response we
	// could not parse.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrRateLimited indicates the source denied access due to request
	// volume. Terminal for the task within a single run.
	ErrRateLimited = errors.New("rate limited")

	// ErrNetwork indicates a transport-level failure.
	ErrNetwork = errors.New("network error")

	// ErrSourceDisabled indicates a search was attempted on a disabled source.
	ErrSourceDisabled = errors.New("source disabled")

	// ErrNotFound indicates a requested entity was not found.
	ErrNotFound = errors.New("not found")
)

// ErrorKind classifies unrecoverable provider failures.
type ErrorKind string

const (
	ErrorKindAuth        ErrorKind = "auth"
	ErrorKindMalformed   ErrorKind = "malformed-response"
	ErrorKindRateLimited ErrorKind = "rate-limited"
	ErrorKindNetwork     ErrorKind = "network"
)

// sentinel returns the sentinel error corresponding to the kind, for use
// with errors.Is.
func (k ErrorKind) sentinel() error {
	switch k {
	case ErrorKindAuth:
		return ErrAuthFailed
	case ErrorKindMalformed:
		return ErrMalformedResponse
	case ErrorKindRateLimited:
		return ErrRateLimited
	default:
		return ErrNetwork
	}
}

// ProviderError describes an unrecoverable failure from one literature
// source. A ProviderError marks its task as failed; it never propagates to,
// or cancels, other tasks.
type ProviderError struct {
	Source  SourceType
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Source, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Kind, e.Message)
}

// Unwrap returns the kind's sentinel so errors.Is works against the
// taxonomy, in addition to the concrete cause.
func (e *ProviderError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind.sentinel(), e.Cause}
	}
	return []error{e.Kind.sentinel()}
}

// NewProviderError creates a ProviderError.
func NewProviderError(source SourceType, kind ErrorKind, message string, cause error) *ProviderError {
	return &ProviderError{
		Source:  source,
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// KindOf extracts the ErrorKind from an error chain. Errors that are not
// ProviderErrors are classified as network failures, the only kind that can
// arise outside an adapter.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrorKindNetwork
}

// ExternalAPIError describes a non-OK HTTP response from an upstream API.
// Adapters wrap it into a ProviderError with the appropriate kind.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
