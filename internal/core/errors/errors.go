// Package errors defines the error taxonomy shared by the policy store and trust data.
package errors

import "fmt"

// DomainError represents errors in the domain logic.
// Two DomainErrors match under errors.Is when their codes are equal, so wrapped
// instances created with NewDomainError still match the sentinels below.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Common domain errors
var (
	// Capacity: the store holds max entries and the key is new.
	ErrStoreFull = &DomainError{
		Code:    "STORE_FULL",
		Message: "policy store is full",
	}

	ErrEntryNotFound = &DomainError{
		Code:    "ENTRY_NOT_FOUND",
		Message: "policy store entry not found",
	}

	ErrIndexOutOfRange = &DomainError{
		Code:    "INDEX_OUT_OF_RANGE",
		Message: "policy store index out of range",
	}

	ErrDomainNotFound = &DomainError{
		Code:    "DOMAIN_NOT_FOUND",
		Message: "certified domain not found",
	}

	ErrDecode = &DomainError{
		Code:    "DECODE_FAILED",
		Message: "malformed serialized policy store",
	}

	ErrCertificationFailed = &DomainError{
		Code:    "CERTIFICATION_FAILED",
		Message: "domain certification failed",
	}

	ErrNotInitialized = &DomainError{
		Code:    "NOT_INITIALIZED",
		Message: "required initialization stage not complete",
	}

	ErrSealFailed = &DomainError{
		Code:    "SEAL_FAILED",
		Message: "sealing service failed",
	}

	ErrInvalidArgument = &DomainError{
		Code:    "INVALID_ARGUMENT",
		Message: "invalid argument",
	}
)

// NewDomainError creates a new domain error with context
func NewDomainError(base *DomainError, err error) error {
	return &DomainError{
		Code:    base.Code,
		Message: base.Message,
		Err:     err,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}
