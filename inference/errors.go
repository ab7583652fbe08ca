package inference

import (
	"fmt"
)

// InferenceError is the base error type for all inference errors
type InferenceError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

// Error implements the error interface
func (e *InferenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *InferenceError) Unwrap() error {
	return e.Cause
}

// GenerationError reports a failed completion call. The result never reaches
// the caller partially populated: generation either yields a full verifiable
// result or this error.
type GenerationError struct {
	*InferenceError
	Model string `json:"model"`
}

// NewGenerationError creates a new generation error
func NewGenerationError(model string, message string, cause error) *GenerationError {
	return &GenerationError{
		InferenceError: &InferenceError{
			Type:    "generation_failed",
			Message: message,
			Cause:   cause,
		},
		Model: model,
	}
}

// ProofGenerationError reports that the witness collaborator returned no
// usable proof for a transcript generation
type ProofGenerationError struct {
	*InferenceError
}

// NewProofGenerationError creates a new proof-generation error
func NewProofGenerationError(message string, cause error) *ProofGenerationError {
	return &ProofGenerationError{
		InferenceError: &InferenceError{
			Type:    "proof_generation_failed",
			Message: message,
			Cause:   cause,
		},
	}
}

// SerializationError reports a result that could not be serialized or a
// serialized artifact that could not be decoded
type SerializationError struct {
	*InferenceError
}

// NewSerializationError creates a new serialization error
func NewSerializationError(message string, cause error) *SerializationError {
	return &SerializationError{
		InferenceError: &InferenceError{
			Type:    "serialization_error",
			Message: message,
			Cause:   cause,
		},
	}
}

// ProviderMismatchError reports a serialized artifact whose payload shape
// does not belong to the strategy tag it carries
type ProviderMismatchError struct {
	*InferenceError
	Tag Strategy `json:"tag"`
}

// NewProviderMismatchError creates a new provider-mismatch error
func NewProviderMismatchError(tag Strategy, message string) *ProviderMismatchError {
	return &ProviderMismatchError{
		InferenceError: &InferenceError{
			Type:    "provider_mismatch",
			Message: message,
		},
		Tag: tag,
	}
}

// StrategyMismatchError reports a result handed to a client configured for a
// different strategy
type StrategyMismatchError struct {
	*InferenceError
	Want Strategy `json:"want"`
	Got  Strategy `json:"got"`
}

// NewStrategyMismatchError creates a new strategy-mismatch error
func NewStrategyMismatchError(want, got Strategy) *StrategyMismatchError {
	return &StrategyMismatchError{
		InferenceError: &InferenceError{
			Type:    "strategy_mismatch",
			Message: fmt.Sprintf("client is configured for %s, got a %s artifact", want, got),
		},
		Want: want,
		Got:  got,
	}
}

// TimeoutError reports a call that ran out of time before the provider or
// witness answered. Only raised when the transport enforced a deadline; the
// package itself imposes none.
type TimeoutError struct {
	*InferenceError
	Operation string `json:"operation"`
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(operation string, cause error) *TimeoutError {
	return &TimeoutError{
		InferenceError: &InferenceError{
			Type:    "timeout",
			Message: fmt.Sprintf("%s did not complete before the deadline", operation),
			Cause:   cause,
		},
		Operation: operation,
	}
}

// RequestValidationError reports an inference request the client refuses to
// dispatch
type RequestValidationError struct {
	*InferenceError
}

// NewRequestValidationError creates a new request-validation error
func NewRequestValidationError(message string) *RequestValidationError {
	return &RequestValidationError{
		InferenceError: &InferenceError{
			Type:    "invalid_request",
			Message: message,
		},
	}
}
