package providers

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig parameterizes WithRetry's exponential backoff.
type RetryConfig struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxAttempts int

	// Limiter, when non-nil, is waited on before every attempt
	// (including the first), pacing calls to a rate-limited upstream
	// independently of the backoff applied between failures.
	Limiter *rate.Limiter
}

// DefaultRetryConfig matches the documented backoff policy for
// upstream provider calls: a 50ms base delay doubling each attempt,
// full jitter, capped at 3 attempts total.
var DefaultRetryConfig = RetryConfig{
	BaseDelay:   50 * time.Millisecond,
	Factor:      2,
	MaxAttempts: 3,
}

// WithRetry calls fn up to cfg.MaxAttempts times, sleeping a full-jitter
// exponential backoff between attempts. It stops early if ctx is
// canceled or fn succeeds, and returns the last error otherwise.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrUnsupported) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.BaseDelay * time.Duration(pow(cfg.Factor, attempt))
		jittered := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
	}
	return lastErr
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
