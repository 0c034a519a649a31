package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleep records requested delays without actually sleeping.
func fakeSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := Retry(context.Background(), RetryConfig{Sleep: fakeSleep(&delays)}, func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, Sleep: fakeSleep(&delays)}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	calls := 0
	wantErr := errors.New("persistent")

	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, Sleep: fakeSleep(&delays)}, func(context.Context) error {
		calls++
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
	// No sleep after the final attempt.
	assert.Len(t, delays, 2)
}

func TestRetry_BackoffCappedAtMaxDelay(t *testing.T) {
	var delays []time.Duration

	_ = Retry(context.Background(), RetryConfig{
		MaxAttempts: 6,
		BaseDelay:   1 * time.Second,
		MaxDelay:    4 * time.Second,
		Sleep:       fakeSleep(&delays),
	}, func(context.Context) error {
		return errors.New("always fails")
	})

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second,
		4 * time.Second,
	}, delays)
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, RetryConfig{}, func(context.Context) error {
		calls++
		return errors.New("should not run")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, RetryConfig{
		MaxAttempts: 3,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, func(context.Context) error {
		calls++
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
