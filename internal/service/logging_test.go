package service

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVerboseLogging(t *testing.T) {
	assert.False(t, IsVerboseLogging(context.Background()))
	assert.True(t, IsVerboseLogging(WithVerbose(context.Background(), true)))
	assert.False(t, IsVerboseLogging(WithVerbose(context.Background(), false)))
	assert.False(t, IsVerboseLogging(context.WithValue(context.Background(), VerboseContextKey, "yes")))
}

func TestLogWithContext(t *testing.T) {
	tests := []struct {
		name     string
		verbose  bool
		expected string
	}{
		{"masked by default", false, "*******9999"},
		{"verbose reveals", true, "66999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logrus.New()
			logger.SetOutput(&buf)
			logger.SetFormatter(&logrus.JSONFormatter{})

			ctx := WithVerbose(context.Background(), tt.verbose)
			LogWithContext(ctx, logger, logrus.Fields{LogFieldPhone: "66999999999"}).Info("Lead injected")

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.expected, entry[LogFieldPhone])
		})
	}
}
