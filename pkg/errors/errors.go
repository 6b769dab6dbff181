package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

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

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrUnknownRole
	ErrIllegalTransition
	ErrIncompleteRecord
	ErrConflict
	ErrStorage
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
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

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// Forbidden reports a role that lacks the named capability for the attempted
// action. The capability is spelled out so staff can see why the request was
// rejected, not just that it was.
func Forbidden(capability string, role string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: fmt.Sprintf("role %q lacks capability %q", role, capability),
	}
}

// UnknownRole reports a role outside the closed role set. This is a
// configuration error, fatal for the request and never retryable.
func UnknownRole(role string) *AppError {
	return &AppError{
		Code:    ErrUnknownRole,
		Message: fmt.Sprintf("unknown role %q", role),
	}
}

// IllegalTransition names the attempted source and target status.
func IllegalTransition(from, to string) *AppError {
	return &AppError{
		Code:    ErrIllegalTransition,
		Message: fmt.Sprintf("illegal status transition %s -> %s", from, to),
	}
}

// IncompleteRecord rejects a completion attempted with an empty payload.
func IncompleteRecord(recordType string) *AppError {
	return &AppError{
		Code:    ErrIncompleteRecord,
		Message: fmt.Sprintf("%s cannot be completed without results", recordType),
	}
}

// Conflict reports a write that lost a concurrent-update race.
func Conflict(resource string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: fmt.Sprintf("%s was modified concurrently", resource),
	}
}

// Storage wraps a data store I/O failure. Reads may be retried by the
// caller; writes must not be blindly retried.
func Storage(op string, err error) *AppError {
	return &AppError{
		Code:    ErrStorage,
		Message: fmt.Sprintf("storage failure during %s", op),
		Err:     err,
	}
}

// Is reports whether err carries the given application error code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf extracts the application error code, or ErrInternal if err is not
// an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
