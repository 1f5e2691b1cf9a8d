package cli

import (
	"errors"

	coreerrors "github.com/sufield/certifier/internal/core/errors"
)

// Sentinel errors for exit code classification
var (
	// ErrUsage indicates invalid command usage, flags, or arguments
	ErrUsage = errors.New("usage error")

	// ErrConfig indicates invalid or unsafe configuration
	ErrConfig = errors.New("configuration error")

	// ErrCertification indicates a domain refused or could not certify the node
	ErrCertification = errors.New("certification error")

	// ErrRuntime indicates runtime execution failures
	ErrRuntime = errors.New("runtime error")

	// ErrInternal indicates internal system errors
	ErrInternal = errors.New("internal error")
)

// classifiedError tags err with one of the sentinels while keeping the
// original chain inspectable.
type classifiedError struct {
	class error
	err   error
}

func (e *classifiedError) Error() string   { return e.class.Error() + ": " + e.err.Error() }
func (e *classifiedError) Unwrap() []error { return []error{e.class, e.err} }

// classify maps core errors to the CLI sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, class := range []error{ErrUsage, ErrConfig, ErrCertification, ErrRuntime, ErrInternal} {
		if errors.Is(err, class) {
			return err
		}
	}

	var verr *coreerrors.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, coreerrors.ErrInvalidArgument):
		return &classifiedError{class: ErrConfig, err: err}
	case errors.Is(err, coreerrors.ErrCertificationFailed), errors.Is(err, coreerrors.ErrDomainNotFound):
		return &classifiedError{class: ErrCertification, err: err}
	default:
		return &classifiedError{class: ErrRuntime, err: err}
	}
}
