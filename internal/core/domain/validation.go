// Validation for configuration structs, built on go-playground/validator/v10.

package domain

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with certifier-specific validators.
type Validator struct {
	validator *validator.Validate
}

// NewValidator creates a new validation instance with the custom validators registered.
func NewValidator() *Validator {
	validate := validator.New()

	_ = validate.RegisterValidation("domain_name", validateDomainNameCustom)
	_ = validate.RegisterValidation("stage_name", validateStageNameCustom)
	_ = validate.RegisterValidation("safe_path", validateSafePathCustom)

	return &Validator{
		validator: validate,
	}
}

// Validate validates a struct.
func (v *Validator) Validate(s interface{}) error {
	return v.validator.Struct(s)
}

// ValidateVar validates a single variable using the specified tag.
func (v *Validator) ValidateVar(field interface{}, tag string) error {
	return v.validator.Var(field, tag)
}

func validateDomainNameCustom(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return true // Empty values handled by 'required' tag
	}
	return ValidateDomainName(name) == nil
}

func validateStageNameCustom(fl validator.FieldLevel) bool {
	_, err := ParseStage(fl.Field().String())
	return err == nil
}

// Paths must not carry control characters or traversal components.
func validateSafePathCustom(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	for _, r := range path {
		if r < 32 || r == 127 {
			return false
		}
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// ValidationError wraps go-playground validator errors with additional context.
type ValidationError struct {
	Field   string      `json:"field"`
	Tag     string      `json:"tag"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", ve.Field, ve.Message)
}

// ConvertValidationErrors converts go-playground validation errors to our custom format.
func ConvertValidationErrors(err error) []ValidationError {
	var errors []ValidationError

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, validationErr := range validationErrors {
			errors = append(errors, ValidationError{
				Field:   validationErr.Namespace(),
				Tag:     validationErr.Tag(),
				Value:   validationErr.Value(),
				Message: getCustomErrorMessage(validationErr),
			})
		}
	}

	return errors
}

func getCustomErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "hexadecimal":
		return "must be a hexadecimal string"
	case "hostname_port":
		return "must be host:port"
	case "domain_name":
		return "must be a non-empty name without whitespace, control characters or '/'"
	case "stage_name":
		return "must be a known initialization stage"
	case "safe_path":
		return "must be a path without control characters or '..' components"
	default:
		return fmt.Sprintf("validation failed for tag '%s'", fe.Tag())
	}
}

// GlobalValidator is the global validator instance for convenience.
var GlobalValidator = NewValidator()

// ValidateStruct is a convenience function using the global validator.
func ValidateStruct(s interface{}) error {
	return GlobalValidator.Validate(s)
}
