// Package syncerr defines the error taxonomy shared by the sync pipelines and
// the gateway. Every failure that reaches a client carries one stable Code.
package syncerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnknownEntityType  Code = "UNKNOWN_ENTITY_TYPE"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeConflictResolution Code = "CONFLICT_RESOLUTION_ERROR"
	CodeStorage            Code = "STORAGE_ERROR"
	CodeAuthorization      Code = "AUTHORIZATION_ERROR"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error is a classified sync failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Code, so callers can test against the
// sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnknownEntityType  = &Error{Code: CodeUnknownEntityType}
	ErrValidation         = &Error{Code: CodeValidation}
	ErrConflictResolution = &Error{Code: CodeConflictResolution}
	ErrStorage            = &Error{Code: CodeStorage}
	ErrAuthorization      = &Error{Code: CodeAuthorization}
)

func UnknownEntityType(name string) error {
	return &Error{Code: CodeUnknownEntityType, Message: fmt.Sprintf("entity type %q not registered", name)}
}

func Validation(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func ConflictResolution(strategy string) error {
	return &Error{Code: CodeConflictResolution, Message: fmt.Sprintf("unknown conflict resolution strategy: %q", strategy)}
}

// Storage wraps a storage failure. Already classified errors pass through.
func Storage(op string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Code: CodeStorage, Message: "failed to " + op, Err: err}
}

func Authorization(msg string) error {
	return &Error{Code: CodeAuthorization, Message: msg}
}

// CodeOf returns the classification of err, or CodeInternal.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the status the gateway responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeUnknownEntityType:
		return http.StatusBadRequest
	case CodeAuthorization:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
