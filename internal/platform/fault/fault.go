// Package fault defines the error taxonomy shared by every component:
// validation failures (malformed input), precondition failures (well-formed
// input, operation not currently allowed) and provider failures (external
// settlement-provider errors with their code preserved).
package fault

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input. No state is mutated when one is
// returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for the given field.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PreconditionError reports a business rule blocking an otherwise well-formed
// operation: referral already linked, payment already submitted, illegal
// status transition.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// Precondition builds a PreconditionError.
func Precondition(format string, args ...interface{}) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

// ProviderError reports a failed settlement-provider call. Code carries the
// provider's machine-readable code, Detail the human-readable message.
type ProviderError struct {
	Code   string
	Detail string
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("provider error: %s", e.Detail)
	}
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Detail)
}

// Provider builds a ProviderError with the provider's code preserved.
func Provider(code, format string, args ...interface{}) error {
	return &ProviderError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPrecondition reports whether err is (or wraps) a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// AsProvider returns the wrapped ProviderError, if any.
func AsProvider(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
