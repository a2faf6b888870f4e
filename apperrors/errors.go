package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that an issue identifier did not resolve to a record.
var ErrNotFound = errors.New("issue not found")

// Validation is a client-side input error tied to a specific field.
type Validation struct {
	Field   string
	Message string
}

func (e *Validation) Error() string {
	return e.Message
}

// NewValidation builds a field-specific validation error.
func NewValidation(field, format string, args ...interface{}) *Validation {
	return &Validation{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}
