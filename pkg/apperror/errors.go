package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func ErrInvalidURL(reason string) *AppError {
	return New("VAL_001", fmt.Sprintf("Invalid webhook URL: %s", reason), http.StatusBadRequest)
}

func ErrInvalidEventType(eventType string) *AppError {
	return New("VAL_002", fmt.Sprintf("Unknown event type %q", eventType), http.StatusBadRequest)
}

// Validation returns a generic VAL_003 validation error.
func Validation(message string) *AppError {
	return New("VAL_003", message, http.StatusBadRequest)
}

// ---- Webhooks (WBH) ----

// ErrNotFound covers both missing rows and cross-merchant access: tenant
// isolation never leaks existence.
func ErrNotFound(entity string) *AppError {
	return New("WBH_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrInvalidProducerSignature() *AppError {
	return New("AUTH_002", "Invalid producer signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("AUTH_003", "Request timestamp expired", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// ErrStorage wraps a storage failure. The failing operation aborts; the
// sweeper picks pending work up on its next pass.
func ErrStorage(err error) *AppError {
	return Wrap("SYS_002", "Internal storage error", http.StatusInternalServerError, err)
}
