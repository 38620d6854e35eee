/*
Package retry provides retries with exponential backoff, and the dead letter
queue that receives what could not be processed.
*/
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/tutaviendo/storefront/internal/config"
)

// Config holds the retry policy.
type Config struct {
	MaxAttempts  int           // Maximum number of attempts, including the first.
	InitialDelay time.Duration // Delay before the first retry.
	MaxDelay     time.Duration // Upper bound for any delay.
	Multiplier   float64       // Exponential backoff multiplier.
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// FromAppConfig builds a policy from the retry section of the application
// configuration, falling back to the defaults for unset values.
func FromAppConfig(cfg *config.AppConfig) Config {
	c := DefaultConfig()
	if cfg.Retry.MaxAttempts > 0 {
		c.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if d := cfg.GetInitialRetryDelay(); d > 0 {
		c.InitialDelay = d
	}
	if d := cfg.GetMaxRetryDelay(); d > 0 {
		c.MaxDelay = d
	}
	if cfg.Retry.Multiplier >= 1 {
		c.Multiplier = cfg.Retry.Multiplier
	}
	return c
}

// PermanentError wraps an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not retryable. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

// Result describes a finished retry loop.
type Result struct {
	Attempts int           // Attempts made.
	Duration time.Duration // Total time spent, delays included.
	Err      error         // Final error, nil on success.
}

// Do runs fn until it succeeds, returns a permanent error, the context is
// done or MaxAttempts is reached.
func Do(ctx context.Context, cfg Config, fn func() error) Result {
	return DoWithCallback(ctx, cfg, fn, nil)
}

// DoWithCallback is Do with a hook called after each failed attempt that will
// be retried. Useful for logging or metrics.
func DoWithCallback(ctx context.Context, cfg Config, fn func() error, onRetry func(attempt int, err error, nextDelay time.Duration)) Result {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Result{Attempts: attempt, Duration: time.Since(start), Err: ctx.Err()}
		default:
		}

		err := fn()
		if err == nil {
			return Result{Attempts: attempt, Duration: time.Since(start)}
		}
		lastErr = err

		if IsPermanent(err) {
			return Result{Attempts: attempt, Duration: time.Since(start), Err: err}
		}

		// No sleep after the last attempt
		if attempt < cfg.MaxAttempts {
			delay := calculateDelay(attempt, cfg)
			if onRetry != nil {
				onRetry(attempt, err, delay)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Result{Attempts: attempt, Duration: time.Since(start), Err: ctx.Err()}
			case <-timer.C:
			}
		}
	}

	return Result{Attempts: cfg.MaxAttempts, Duration: time.Since(start), Err: lastErr}
}

// calculateDelay computes the backoff for attempt, capped at MaxDelay, with
// ±25% jitter.
func calculateDelay(attempt int, cfg Config) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	jitter := delay * 0.25 * (rand.Float64()*2 - 1)
	delay += jitter

	return time.Duration(delay)
}
