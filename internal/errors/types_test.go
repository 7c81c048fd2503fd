package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeInvalidConfig,
				Message: "configuration is invalid",
			},
			expected: "INVALID_CONFIG: configuration is invalid",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeGatewayUnavailable,
				Message: "gateway unreachable",
				Cause:   errors.New("connection refused"),
			},
			expected: "GATEWAY_UNAVAILABLE: gateway unreachable: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternalError, "something went wrong")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeValidationFailed, "validation failed")

	result := err.WithContext("field", "phone").WithContext("value", "abc")

	assert.Equal(t, err, result)
	assert.Len(t, err.Context, 2)
	assert.Equal(t, "phone", err.Context["field"])
}

func TestWrapRetryable(t *testing.T) {
	err := WrapRetryable(errors.New("boom"), ErrCodeGatewayTimeout, "timed out")

	assert.True(t, err.Retryable)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestGetCode_WrappedChain(t *testing.T) {
	appErr := New(ErrCodeForwardFailed, "forward failed")
	wrapped := fmt.Errorf("handling event: %w", appErr)

	assert.Equal(t, ErrCodeForwardFailed, GetCode(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeForwardFailed))
	assert.False(t, HasCode(nil, ErrCodeForwardFailed))
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("plain")))

	found, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, appErr, found)
}

func TestGetUserMessage(t *testing.T) {
	assert.Equal(t, "nope", GetUserMessage(New(ErrCodeAuthentication, "x").WithUserMessage("nope")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(New(ErrCodeAuthentication, "x")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(errors.New("plain")))
}
