package backoff

// Package backoff is a small bounded-retry helper for network operations.

import (
	"context"
	"errors"
	"time"
)

type Config struct {
	MaxAttempts  int           // Total attempts, including the first. Zero value means 3.
	InitialDelay time.Duration // Delay after the first failure. Zero value means 500ms.
	MaxDelay     time.Duration // Cap on the delay between attempts. Zero value means 30s.
	Multiplier   float64       // Growth factor per attempt. Zero value means 2.
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts > 0 {
		d.MaxAttempts = c.MaxAttempts
	}
	if c.InitialDelay > 0 {
		d.InitialDelay = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		d.MaxDelay = c.MaxDelay
	}
	if c.Multiplier > 1 {
		d.Multiplier = c.Multiplier
	}
	return d
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps an error so that Retry surfaces it immediately instead of
// retrying. Retry unwraps it before returning.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

// Retry runs op until it succeeds, returns a permanent error, the attempt
// budget is exhausted, or the context is cancelled. The last error is
// returned on failure.
func Retry(ctx context.Context, config Config, op func() error) error {
	config = config.withDefaults()
	delay := config.InitialDelay
	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
		if lastErr = op(); lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
	}
	return lastErr
}
