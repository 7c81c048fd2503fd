package errors

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	return logger, &buf
}

func TestLogError(t *testing.T) {
	tests := []struct {
		name             string
		err              error
		message          string
		fields           []logrus.Fields
		expectedInOutput []string
	}{
		{
			name:    "AppError with context",
			err:     NewForwardError("lead-capture", 502, "unexpected status 502", nil),
			message: "Failed to forward lead",
			fields:  []logrus.Fields{{"request_id": "req_1"}},
			expectedInOutput: []string{
				`"level":"error"`,
				`"error_code":"FORWARD_FAILED"`,
				`"target":"lead-capture"`,
				`"request_id":"req_1"`,
				`"msg":"Failed to forward lead"`,
			},
		},
		{
			name:    "standard error",
			err:     errors.New("something went wrong"),
			message: "Operation failed",
			expectedInOutput: []string{
				`"level":"error"`,
				`"error":"something went wrong"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newTestLogger()

			LogError(logger, tt.err, tt.message, tt.fields...)

			for _, expected := range tt.expectedInOutput {
				assert.Contains(t, buf.String(), expected)
			}
		})
	}
}

func TestLogRetryableError(t *testing.T) {
	logger, buf := newTestLogger()
	LogRetryableError(logger, NewGatewayError("/api/sendText", 503, nil), "Gateway call failed")
	assert.Contains(t, buf.String(), `"level":"warning"`)

	logger, buf = newTestLogger()
	LogRetryableError(logger, NewGatewayError("/api/sendText", 400, nil), "Gateway call failed")
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestFields_PlainError(t *testing.T) {
	assert.Empty(t, Fields(errors.New("plain")))
}
