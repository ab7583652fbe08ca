package providers

import (
	"fmt"
)

// ProviderError is the base error type for all provider errors
type ProviderError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NoMatchError reports that an extraction pattern matched nothing in the payload
type NoMatchError struct {
	*ProviderError
	Pattern string `json:"pattern"`
}

// NewNoMatchError creates a new no-match error
func NewNoMatchError(pattern string) *NoMatchError {
	return &NoMatchError{
		ProviderError: &ProviderError{
			Type:    "no_match",
			Message: fmt.Sprintf("pattern %q did not match the payload", pattern),
		},
		Pattern: pattern,
	}
}

// AmbiguousMatchError reports that an extraction pattern matched more than
// once where exactly one match was required
type AmbiguousMatchError struct {
	*ProviderError
	Pattern    string `json:"pattern"`
	MatchCount int    `json:"match_count"`
}

// NewAmbiguousMatchError creates a new ambiguous-match error
func NewAmbiguousMatchError(pattern string, matchCount int) *AmbiguousMatchError {
	return &AmbiguousMatchError{
		ProviderError: &ProviderError{
			Type:    "ambiguous_match",
			Message: fmt.Sprintf("pattern %q matched %d times, expected exactly one", pattern, matchCount),
		},
		Pattern:    pattern,
		MatchCount: matchCount,
	}
}

// MalformedPayloadError reports that the payload could not be decoded into
// the structure the extraction expected
type MalformedPayloadError struct {
	*ProviderError
}

// NewMalformedPayloadError creates a new malformed-payload error
func NewMalformedPayloadError(message string, cause error) *MalformedPayloadError {
	return &MalformedPayloadError{
		ProviderError: &ProviderError{
			Type:    "malformed_payload",
			Message: message,
			Cause:   cause,
		},
	}
}

// PatternError reports an extraction pattern the engine refuses to compile
type PatternError struct {
	*ProviderError
	Pattern string `json:"pattern"`
}

// NewPatternError creates a new pattern error
func NewPatternError(pattern string, message string, cause error) *PatternError {
	return &PatternError{
		ProviderError: &ProviderError{
			Type:    "pattern_error",
			Message: message,
			Cause:   cause,
		},
		Pattern: pattern,
	}
}

// RequestError reports a failure to build or send the provider request
type RequestError struct {
	*ProviderError
}

// NewRequestError creates a new request error
func NewRequestError(message string, cause error) *RequestError {
	return &RequestError{
		ProviderError: &ProviderError{
			Type:    "request_error",
			Message: message,
			Cause:   cause,
		},
	}
}
