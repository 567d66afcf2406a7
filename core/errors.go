package core

import "github.com/pkg/errors"

// FieldError pins an error message to a single input field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError carries per-field messages produced outside the struct
// validator; the API layer renders it as a 400 field map.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// shutdownError marks failures the service cannot recover from, such as a
// lost database connection. The API error handler reacts by signaling a
// graceful shutdown.
type shutdownError struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdownError{message: msg}
}

func (err shutdownError) Error() string {
	return err.message
}

// IsShutdown reports whether err, at its cause, calls for a shutdown.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdownError)
	return ok
}
