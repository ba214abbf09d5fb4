package domain

import (
	"errors"
	"strings"
)

// ErrNotFound marks operations that reference a task id absent from the
// store. Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a request before any store call is made. Reasons
// lists every failed check so the caller can correct the request in one pass.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

// IsValidation reports whether err is a validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
