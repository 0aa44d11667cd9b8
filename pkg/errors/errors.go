package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidation
	ErrConflict
	ErrStatePrecondition
	ErrUnauthorized
	ErrForbidden
	ErrInternal
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to an HTTP status for the error middleware.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrConflict:
		return http.StatusConflict
	case ErrStatePrecondition:
		return http.StatusUnprocessableEntity
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewValidation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Err:     err,
	}
}

// NewConflict reports a resource collision: double booking, duplicate active
// waitlist entry, re-promotion of a booked entry.
func NewConflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

// NewStatePrecondition reports a transition attempted from an illegal source
// state.
func NewStatePrecondition(message string, err error) *AppError {
	return &AppError{
		Code:    ErrStatePrecondition,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func Validation(message string, err error) *AppError {
	return NewValidation(message, err)
}

func Conflict(message string, err error) *AppError {
	return NewConflict(message, err)
}

func StatePrecondition(message string, err error) *AppError {
	return NewStatePrecondition(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
