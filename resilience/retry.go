// Package resilience provides the retry and circuit-breaker primitives that
// guard calls to external services (completion, transcript enrichment).
//
// The two primitives are independent and composable: wrap an operation in
// Retry for transient-failure absorption, and run it through a Breaker to
// stop hammering an upstream that is persistently failing.
package resilience

import (
	"context"
	"time"

	"github.com/parleylabs/parley/logger"
)

// Default retry parameters.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// RetryConfig configures Retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Each subsequent retry
	// doubles the delay. Defaults to DefaultBaseDelay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay. Defaults to DefaultMaxDelay.
	MaxDelay time.Duration

	// Sleep overrides the sleep function. Tests inject a fake to avoid
	// real delays; nil means context-aware time.After.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c *RetryConfig) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
}

// Retry executes op, retrying on failure with exponential backoff:
// min(BaseDelay * 2^(attempt-1), MaxDelay). No jitter is applied. After
// MaxAttempts are exhausted the last failure is returned. The context is
// honored between attempts; a canceled context aborts the loop with ctx.Err().
func Retry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	cfg.defaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		logger.Warn("operation attempt failed",
			"attempt", attempt, "max_attempts", cfg.MaxAttempts, "error", lastErr)

		if attempt < cfg.MaxAttempts {
			if err := cfg.Sleep(ctx, backoffDelay(cfg, attempt)); err != nil {
				return err
			}
		}
	}

	return lastErr
}

// backoffDelay computes min(BaseDelay * 2^(attempt-1), MaxDelay).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}

// sleepContext sleeps for d or until the context is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
