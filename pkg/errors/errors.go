package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Workflow state errors.
	ErrDuplicateSubmission = New("DUPLICATE_SUBMISSION", http.StatusConflict, "an active submission already exists for this module and type")
	ErrInvalidDeadline     = New("INVALID_DEADLINE", http.StatusBadRequest, "deadline is missing or malformed")
	ErrWrongState          = New("WRONG_STATE", http.StatusConflict, "submission state does not allow this operation")
	ErrAlreadyFinalized    = New("ALREADY_FINALIZED", http.StatusConflict, "submission has already reached a terminal state")
	ErrVersionConflict     = New("VERSION_CONFLICT", http.StatusConflict, "submission was modified concurrently, retry with fresh state")

	// Mark validation errors.
	ErrUnknownStudent = New("UNKNOWN_STUDENT", http.StatusBadRequest, "student is not on the module roster")
	ErrOutOfRange     = New("OUT_OF_RANGE", http.StatusBadRequest, "component score is outside the accepted range")
	ErrNotValid       = New("NOT_VALID", http.StatusPreconditionFailed, "submission marks have not passed validation")

	// Collaborator errors.
	ErrGenerationFailed = New("GENERATION_FAILED", http.StatusInternalServerError, "mark sheet generation failed")
	ErrIndeterminate    = New("INDETERMINATE", http.StatusServiceUnavailable, "operation outcome unknown, re-check submission state before retrying")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// HasCode reports whether err carries the same code as target.
func HasCode(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
