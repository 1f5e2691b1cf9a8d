package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for production readiness
var (
	ErrSimulatedEnclave  = errors.New("simulated enclave configured")
	ErrNoPrimaryDomain   = errors.New("no primary domain configured")
	ErrMissingPolicyCert = errors.New("domain has no policy certificate file")
	ErrRelativeStorePath = errors.New("policy store path is relative")
	ErrVerboseLogging    = errors.New("verbose logging enabled")
	ErrPublicMetrics     = errors.New("metrics endpoint listens on all interfaces")
)

// ProductionValidationError wraps multiple production readiness errors
type ProductionValidationError struct {
	Errors []error
}

func (e *ProductionValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "production validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("production validation failed: %v", e.Errors[0])
	}
	return fmt.Sprintf("production validation failed with %d errors", len(e.Errors))
}

func (e *ProductionValidationError) Unwrap() []error {
	return e.Errors
}

// NewProductionValidationError returns nil when errs is empty.
func NewProductionValidationError(errs ...error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ProductionValidationError{Errors: errs}
}
