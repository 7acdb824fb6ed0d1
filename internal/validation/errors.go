package validation

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every error returned from a FieldValidator
var ErrValidation = errors.New("validation failed")

// FieldError описывает нарушение правила для одного поля
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrValidation)
func (e *FieldError) Unwrap() error {
	return ErrValidation
}
