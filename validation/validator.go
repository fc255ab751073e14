package validation

import (
	"slices"
	"strings"

	apperrors "github.com/kbukum/infermesh/errors"
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator collects validation errors.
type Validator struct {
	errors []FieldError
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// AddError adds a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool { return len(v.errors) > 0 }

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError { return v.errors }

// Required checks that value is not blank.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// OneOf checks that value is in allowed. An empty allow-list accepts anything.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if len(allowed) > 0 && !slices.Contains(allowed, value) {
		v.AddError(field, "must be one of: "+strings.Join(allowed, " "))
	}
	return v
}

// Validate returns an AppError if there are validation errors, nil otherwise.
func (v *Validator) Validate() error {
	if !v.HasErrors() {
		return nil
	}
	return fromFieldErrors(v.errors)
}

func fromFieldErrors(fields []FieldError) *apperrors.AppError {
	messages := make([]string, len(fields))
	for i, e := range fields {
		messages[i] = e.Field + " " + e.Message
	}
	field := ""
	if len(fields) == 1 {
		field = fields[0].Field
	}
	appErr := apperrors.InvalidInput(field, strings.Join(messages, "; "))
	return appErr.WithDetail("fields", fields)
}
