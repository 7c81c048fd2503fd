package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"leadbridge/internal/errors"
	"leadbridge/internal/httputil"
	"leadbridge/internal/metrics"
	"leadbridge/internal/models"
	"leadbridge/internal/service"
	"leadbridge/internal/tracing"
	"leadbridge/internal/validation"

	"github.com/sirupsen/logrus"
)

type contextKey string

const authContextKey contextKey = "auth"

// Authenticator proves an inbound request
type Authenticator interface {
	Authenticate(r *http.Request, body []byte) (*models.AuthContext, error)
}

// Limiter decides whether a source may make another request
type Limiter interface {
	Check(key string) (bool, time.Duration)
	Limits() (int, time.Duration)
}

// authFromContext returns the proof attached by the auth middleware
func authFromContext(ctx context.Context) (*models.AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(*models.AuthContext)
	return ac, ok
}

// readBody reads at most maxBytes of the request body and puts it back so
// handlers can decode it again
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if err := validation.ValidateHTTPRequestSize(r, maxBytes); err != nil {
		return nil, err
	}
	if r.Body == nil {
		return nil, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, errors.NewValidationError("body", "too large: max "+strconv.FormatInt(maxBytes, 10)+" bytes")
		}
		return nil, errors.NewValidationError("body", "could not be read")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// authMiddleware buffers the body, authenticates the request and attaches
// the resulting AuthContext. Failures answer 401 without calling next.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r, s.maxBodyBytes)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ac, err := s.auth.Authenticate(r, body)
		if err != nil {
			metrics.IncrementCounter(metrics.AuthFailuresTotal, map[string]string{"route": r.URL.Path}, "Rejected authentication attempts")
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
				service.LogFieldURL:       r.URL.Path,
				service.LogFieldSourceID:  httputil.SourceID(r),
			}).Warn("Authentication failed")
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey, ac)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware runs after authentication and limits per source id.
// Refusals answer 429 with Retry-After.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := httputil.SourceID(r)
		if ac, ok := authFromContext(r.Context()); ok {
			key = ac.SourceID
		}

		allowed, retryAfter := s.limiter.Check(key)
		if !allowed {
			secs := errors.RetryAfterSeconds(retryAfter)
			metrics.IncrementCounter(metrics.RateLimitedTotal, nil, "Requests refused by the rate limiter")
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
				service.LogFieldSourceID:  key,
				"retry_after_seconds":     secs,
			}).Warn("Rate limit exceeded")

			limit, window := s.limiter.Limits()
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			s.writeError(w, r, errors.NewRateLimitError(limit, window, retryAfter))
			return
		}

		next.ServeHTTP(w, r)
	})
}
