// Package domainerrors defines coded errors returned by services to presentation
// layers. Infrastructure code returns sentinel errors; services translate them
// into one of the codes below so callers can branch without string matching.
package domainerrors

import (
	"errors"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeNotAuthenticated is returned when a guarded operation runs without a
	// session. The backend was not contacted.
	CodeNotAuthenticated Code = "not_authenticated"
	// CodeBackendRejected carries a message the backend returned for a domain
	// failure (bad credentials, duplicate email, storage quota).
	CodeBackendRejected Code = "backend_rejected"
	// CodeTransport means the backend could not be reached.
	CodeTransport Code = "transport_failure"
	// CodePartialFailure means a multi-step operation stopped after a step with
	// side effects had already succeeded.
	CodePartialFailure Code = "partial_failure"
	CodeValidation     Code = "validation_error"
	CodeInvalidInput   Code = "invalid_input"
	CodeNotFound       Code = "not_found"
	CodeInternal       Code = "internal_error"
)

// Error is a coded error with a user-facing message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any coded error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the code of the outermost coded error, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// UserMessage returns the message of the outermost coded error. Uncoded errors
// are hidden behind a generic message.
func UserMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "something went wrong"
}
