package service

import (
	"context"

	"leadbridge/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey marks a request context as allowed to log personal data
const VerboseContextKey ContextKey = "verbose"

// WithVerbose returns a context carrying the verbose logging flag
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// LogWithContext returns an entry with fields masked unless ctx is verbose
func LogWithContext(ctx context.Context, logger logrus.FieldLogger, fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(privacy.MaskSensitiveFields(fields, IsVerboseLogging(ctx)))
}
