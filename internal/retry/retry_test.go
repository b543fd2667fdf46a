package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayForAttemptGrowsExponentially(t *testing.T) {
	cfg := Config{
		MaxAttempts:       5,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          10 * time.Second,
	}

	require.Equal(t, 100*time.Millisecond, cfg.DelayForAttempt(1))
	require.Equal(t, 200*time.Millisecond, cfg.DelayForAttempt(2))
	require.Equal(t, 400*time.Millisecond, cfg.DelayForAttempt(3))
	require.Equal(t, 800*time.Millisecond, cfg.DelayForAttempt(4))
}

func TestDelayForAttemptCapsAtMaxDelay(t *testing.T) {
	cfg := Config{
		MaxAttempts:       10,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 10.0,
		MaxDelay:          1 * time.Second,
	}
	require.Equal(t, 1*time.Second, cfg.DelayForAttempt(5))
}

func TestIsHTTPRetryable(t *testing.T) {
	retryable := []int{408, 429, 500, 502, 503, 599}
	for _, status := range retryable {
		require.True(t, IsHTTPRetryable(status), "status %d", status)
	}
	terminal := []int{400, 401, 404, 200, 301}
	for _, status := range terminal {
		require.False(t, IsHTTPRetryable(status), "status %d", status)
	}
}

func TestWithBackoffStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	errTerminal := errors.New("terminal")
	_, err := WithBackoff(context.Background(), Config{
		MaxAttempts:       5,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          time.Second,
	}, func() (int, error) {
		attempts++
		return 0, errTerminal
	}, func(error) bool { return false })

	require.ErrorIs(t, err, errTerminal)
	require.Equal(t, 1, attempts)
}

func TestWithBackoffExhaustsMaxAttempts(t *testing.T) {
	attempts := 0
	errRetryable := errors.New("retryable")
	_, err := WithBackoff(context.Background(), Config{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          time.Second,
	}, func() (int, error) {
		attempts++
		return 0, errRetryable
	}, func(error) bool { return true })

	require.ErrorIs(t, err, errRetryable)
	require.Equal(t, 3, attempts)
}

func TestWithBackoffSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	result, err := WithBackoff(context.Background(), Config{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          time.Second,
	}, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}, func(error) bool { return true })

	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 2, attempts)
}

func TestWithBackoffRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithBackoff(ctx, Config{
		MaxAttempts:       3,
		InitialDelay:      50 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          time.Second,
	}, func() (int, error) {
		return 0, errors.New("retryable")
	}, func(error) bool { return true })

	require.ErrorIs(t, err, context.Canceled)
}
