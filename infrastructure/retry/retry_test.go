package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/retry"
)

func fastConfig() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Retry(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	calls := 0
	boom := errors.New("bad request")
	err := retry.Retry(context.Background(), fastConfig(), func() error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetry_PermanentIsUnwrapped(t *testing.T) {
	t.Parallel()

	cause := errors.New("timeout but do not retry")
	err := retry.Retry(context.Background(), fastConfig(), func() error {
		return retry.Permanent(cause)
	})

	assert.Equal(t, cause, err)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Retry(context.Background(), fastConfig(), func() error {
		calls++
		return context.DeadlineExceeded
	})

	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, calls)
}

func TestRetry_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Retry(ctx, fastConfig(), func() error { return nil })
	require.ErrorIs(t, err, retry.ErrContextCancelled)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	cfg := retry.Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, retry.Backoff(cfg, 1))
	assert.Equal(t, 2*time.Second, retry.Backoff(cfg, 2))
	assert.Equal(t, 4*time.Second, retry.Backoff(cfg, 3))
	assert.Equal(t, 5*time.Second, retry.Backoff(cfg, 4))
}
