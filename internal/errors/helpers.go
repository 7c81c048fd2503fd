package errors

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("%s %s", field, message)).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewGatewayError classifies a failed gateway call. A nil cause with a status
// code describes an HTTP-level failure; a cause without a status code is a
// transport failure.
func NewGatewayError(endpoint string, statusCode int, cause error) *AppError {
	var appErr *AppError
	switch {
	case statusCode >= 400 && statusCode < 500:
		appErr = Wrap(cause, ErrCodeGatewayRejected, fmt.Sprintf("gateway rejected request with status %d", statusCode))
		appErr.Retryable = statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout
	case statusCode >= 500:
		appErr = WrapRetryable(cause, ErrCodeGatewayUnavailable, fmt.Sprintf("gateway failed with status %d", statusCode))
	default:
		appErr = WrapRetryable(cause, ErrCodeGatewayUnavailable, "gateway unreachable")
	}

	appErr = appErr.WithContext("endpoint", endpoint).WithUserMessage(appErr.Message)
	if statusCode > 0 {
		appErr = appErr.WithContext("status_code", statusCode)
	}
	return appErr
}

// NewGatewayTimeoutError creates a timeout error for a gateway call
func NewGatewayTimeoutError(endpoint string, timeout time.Duration, cause error) *AppError {
	return WrapRetryable(cause, ErrCodeGatewayTimeout, fmt.Sprintf("gateway call timed out after %s", timeout)).
		WithContext("endpoint", endpoint).
		WithContext("timeout", timeout.String()).
		WithUserMessage(fmt.Sprintf("gateway call timed out after %s", timeout))
}

// NewForwardError creates a downstream forward failure. statusCode is zero
// when no response was received.
func NewForwardError(target string, statusCode int, message string, cause error) *AppError {
	appErr := Wrap(cause, ErrCodeForwardFailed, message).
		WithContext("target", target).
		WithUserMessage(fmt.Sprintf("forward to %s failed: %s", target, message))
	if statusCode > 0 {
		appErr = appErr.WithContext("status_code", statusCode)
	}
	appErr.Retryable = statusCode == 0 || statusCode >= 500
	return appErr
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewRateLimitError creates a rate limit error carrying the retry hint
func NewRateLimitError(limit int, window, retryAfter time.Duration) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("window", window.String()).
		WithContext("retry_after_seconds", RetryAfterSeconds(retryAfter)).
		WithUserMessage("Too many requests, please try again later")
}

// RetryAfterSeconds rounds a retry hint up to whole seconds, minimum one
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body returned for every failed request
type HTTPErrorResponse struct {
	Success           bool      `json:"success"`
	Error             string    `json:"error"`
	Code              ErrorCode `json:"code"`
	RetryAfterSeconds int       `json:"retryAfterSeconds,omitempty"`
	RequestID         string    `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		Success:   false,
		Code:      GetCode(err),
		RequestID: requestID,
	}

	appErr, ok := As(err)
	if !ok {
		response.Error = err.Error()
		return response
	}

	response.Error = appErr.UserMessage
	if response.Error == "" {
		response.Error = appErr.Message
	}
	if v, ok := appErr.Context["retry_after_seconds"]; ok {
		switch n := v.(type) {
		case int:
			response.RetryAfterSeconds = n
		case string:
			response.RetryAfterSeconds, _ = strconv.Atoi(n)
		}
	}
	return response
}
