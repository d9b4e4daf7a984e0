package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Err       error     `json:"-"`
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

// StatusCode maps the error code onto an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrMalformedEvent:
		return http.StatusUnprocessableEntity
	case ErrAckFailed:
		return http.StatusBadGateway
	case ErrTransport, ErrCircuitOpen:
		return http.StatusServiceUnavailable
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrMalformedEvent
	ErrAckFailed
	ErrTransport
	ErrCircuitOpen
	ErrRateLimited
	ErrTimeout
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

// MalformedEvent is returned by the wire decoder for payloads that cannot be normalized.
func MalformedEvent(err error) *AppError {
	return &AppError{
		Code:    ErrMalformedEvent,
		Message: "malformed event",
		Err:     err,
	}
}

// AckFailed is a retryable failure tied to one notification.
func AckFailed(id string, err error) *AppError {
	return &AppError{
		Code:      ErrAckFailed,
		Message:   fmt.Sprintf("acknowledging notification %s failed", id),
		Retryable: true,
		Err:       err,
	}
}

func Transport(op string, err error) *AppError {
	return &AppError{
		Code:      ErrTransport,
		Message:   fmt.Sprintf("%s: backend unavailable", op),
		Retryable: true,
		Err:       err,
	}
}

func CircuitOpen(name string) *AppError {
	return &AppError{
		Code:      ErrCircuitOpen,
		Message:   fmt.Sprintf("circuit breaker %s is open", name),
		Retryable: true,
	}
}

func RateLimited() *AppError {
	return &AppError{
		Code:      ErrRateLimited,
		Message:   "rate limit exceeded",
		Retryable: true,
	}
}

func Timeout(err error) *AppError {
	return &AppError{
		Code:      ErrTimeout,
		Message:   "request timed out",
		Retryable: true,
		Err:       err,
	}
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable reports whether the caller may retry the failed action.
func IsRetryable(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
