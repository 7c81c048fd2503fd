// Package retry runs an operation with exponential backoff. Request paths
// never retry; this is used for startup work such as webhook registration.
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"leadbridge/internal/constants"
	"leadbridge/internal/errors"
)

// BackoffConfig contains configuration for exponential backoff
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	MaxAttempts  int           `json:"max_attempts"`
	Jitter       bool          `json:"jitter"`
}

// DefaultBackoffConfig returns the startup registration defaults
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultRegisterInitialDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultRegisterMaxDelaySec) * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultRegisterAttempts,
		Jitter:       true,
	}
}

// Backoff implements exponential backoff with optional jitter
type Backoff struct {
	config BackoffConfig
	// IsRetryable decides whether a failed attempt is tried again.
	// Defaults to errors.IsRetryable.
	IsRetryable func(error) bool
	// OnRetry is called before sleeping between attempts
	OnRetry func(attempt int, delay time.Duration, err error)
}

// NewBackoff creates a backoff, filling zero config values with defaults
func NewBackoff(config BackoffConfig) *Backoff {
	def := DefaultBackoffConfig()
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay < config.InitialDelay {
		config.MaxDelay = config.InitialDelay
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Backoff{
		config:      config,
		IsRetryable: errors.IsRetryable,
	}
}

// WithOnRetry returns a copy of b that calls fn before each wait, after any
// OnRetry hook b already has. b itself is not modified.
func (b *Backoff) WithOnRetry(fn func(attempt int, delay time.Duration, err error)) *Backoff {
	clone := *b
	prev := b.OnRetry
	clone.OnRetry = func(attempt int, delay time.Duration, err error) {
		if prev != nil {
			prev(attempt, delay, err)
		}
		fn(attempt, delay, err)
	}
	return &clone
}

// Retry runs operation until it succeeds, returns a non-retryable error,
// runs out of attempts or ctx is done. The last operation error is returned.
func (b *Backoff) Retry(ctx context.Context, operation func(ctx context.Context, attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = operation(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if b.IsRetryable != nil && !b.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == b.config.MaxAttempts {
			break
		}

		delay := b.Delay(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// Delay returns the wait after the given attempt: InitialDelay grown by
// Multiplier per attempt, capped at MaxDelay, with up to ±25% jitter.
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.config.InitialDelay)
	for i := 1; i < attempt && delay < float64(b.config.MaxDelay); i++ {
		delay *= b.config.Multiplier
	}
	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}

	if b.config.Jitter {
		delay += (randomFloat() - 0.5) * 0.5 * delay
		if delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}
	return time.Duration(delay)
}

// randomFloat returns a value in [0, 1)
func randomFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0.5
	}
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53)
}
