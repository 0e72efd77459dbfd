package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Config{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryExhausted(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	err := Retry(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, attempts)
}

func TestRetryPermanent(t *testing.T) {
	fatal := errors.New("bad request")
	attempts := 0
	err := Retry(context.Background(), Config{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return Permanent(fatal)
	})
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, attempts)
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, Config{MaxAttempts: 3, InitialDelay: time.Minute}, func() error {
		return errors.New("never succeeds")
	})
	require.ErrorIs(t, err, context.Canceled)
}
