package backend

import (
	"errors"

	dErrors "studygenie/pkg/domain-errors"
	"studygenie/pkg/platform/sentinel"
)

// Error is a backend failure with a message fit for end users. Kind is one of
// the sentinel errors; Err is the adapter-level cause, if any.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Reject reports a domain refusal by the backend (bad credentials, duplicate
// email, constraint violation).
func Reject(message string, cause error) error {
	return &Error{Kind: sentinel.ErrRejected, Message: message, Err: cause}
}

// Unavailable reports that the backend could not be reached.
func Unavailable(cause error) error {
	return &Error{Kind: sentinel.ErrUnavailable, Message: "backend unavailable", Err: cause}
}

// NotFound reports a missing row or object.
func NotFound(message string) error {
	return &Error{Kind: sentinel.ErrNotFound, Message: message}
}

// Conflict reports that the target already exists.
func Conflict(message string, cause error) error {
	return &Error{Kind: sentinel.ErrConflict, Message: message, Err: cause}
}

// Expired reports that the session is no longer valid.
func Expired(message string) error {
	return &Error{Kind: sentinel.ErrExpired, Message: message}
}

// Translate maps a backend error onto the domain taxonomy. Coded errors pass
// through; transport failures stay distinct from rejections.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	message := err.Error()
	var be *Error
	if errors.As(err, &be) {
		message = be.Message
	}
	switch {
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeTransport, "service unavailable, please try again")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, message)
	default:
		return dErrors.Wrap(err, dErrors.CodeBackendRejected, message)
	}
}
