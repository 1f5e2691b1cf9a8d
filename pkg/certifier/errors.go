package certifier

import (
	"github.com/sufield/certifier/internal/core/errors"
)

// Errors returned by the certifier. Match them with errors.Is.
var (
	ErrStoreFull           = errors.ErrStoreFull
	ErrEntryNotFound       = errors.ErrEntryNotFound
	ErrIndexOutOfRange     = errors.ErrIndexOutOfRange
	ErrDomainNotFound      = errors.ErrDomainNotFound
	ErrDecode              = errors.ErrDecode
	ErrCertificationFailed = errors.ErrCertificationFailed
	ErrNotInitialized      = errors.ErrNotInitialized
	ErrSealFailed          = errors.ErrSealFailed
	ErrInvalidArgument     = errors.ErrInvalidArgument
)

// ValidationError describes an invalid configuration field.
type ValidationError = errors.ValidationError
