package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	e := New("VAL_003", "Bad input", http.StatusBadRequest)
	assert.Equal(t, "[VAL_003] Bad input", e.Error())
}

func TestAppError_ErrorWithWrapped(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	e := Wrap("SYS_002", "Internal storage error", http.StatusInternalServerError, inner)
	assert.Contains(t, e.Error(), "SYS_002")
	assert.Contains(t, e.Error(), "connection refused")
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	e := InternalError(inner)
	assert.True(t, errors.Is(e, inner))
}

func TestErrNotFound(t *testing.T) {
	e := ErrNotFound("webhook")
	assert.Equal(t, "WBH_001", e.Code)
	assert.Equal(t, http.StatusNotFound, e.HTTPStatus)
	assert.Contains(t, e.Message, "webhook")
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"invalid url", ErrInvalidURL("scheme must be https"), "VAL_001", http.StatusBadRequest},
		{"invalid event type", ErrInvalidEventType("order.deleted"), "VAL_002", http.StatusBadRequest},
		{"generic validation", Validation("limit out of range"), "VAL_003", http.StatusBadRequest},
		{"invalid token", ErrInvalidToken(), "AUTH_001", http.StatusUnauthorized},
		{"producer signature", ErrInvalidProducerSignature(), "AUTH_002", http.StatusUnauthorized},
		{"timestamp expired", ErrTimestampExpired(), "AUTH_003", http.StatusForbidden},
		{"rate limited", ErrRateLimitExceeded(), "RATE_001", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestErrAs(t *testing.T) {
	var appErr *AppError
	err := error(ErrRateLimitExceeded())
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "RATE_001", appErr.Code)
}
