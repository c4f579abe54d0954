package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fast(attempts int) Backoff {
	return Backoff{Attempts: attempts, Base: time.Millisecond, Cap: 2 * time.Millisecond}
}

func TestDo_RetriesRetryable(t *testing.T) {
	calls := 0
	err := fast(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errBoom)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsUnmarkedErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := fast(2).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errBoom)
	})

	assert.Equal(t, errBoom, err)
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentStops(t *testing.T) {
	calls := 0
	err := fast(5).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errBoom)
	})

	assert.Equal(t, errBoom, err)
	assert.Equal(t, 1, calls)
}

func TestDo_PlainErrorNotRetried(t *testing.T) {
	calls := 0
	err := fast(3).Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fast(3).Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_OnRetryCalled(t *testing.T) {
	var attempts []int
	b := fast(3)
	b.OnRetry = func(a int, _ error, _ time.Duration) { attempts = append(attempts, a) }

	_ = b.Do(context.Background(), func(context.Context) error { return Retryable(errBoom) })
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("call: %w", Retryable(errBoom))))
	assert.False(t, IsRetryable(Permanent(errBoom)))
	assert.False(t, IsRetryable(errBoom))
	assert.Nil(t, Retryable(nil))
	assert.Nil(t, Permanent(nil))
}

func TestWait_Capped(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Cap: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, b.Wait(1))
	assert.Equal(t, 200*time.Millisecond, b.Wait(2))
	assert.Equal(t, 300*time.Millisecond, b.Wait(3))
	assert.Equal(t, 300*time.Millisecond, b.Wait(8))
}

func TestModelServer_StaysUnderHalfSecond(t *testing.T) {
	b := ModelServer(nil)
	var total time.Duration
	for a := 1; a < b.Attempts; a++ {
		total += b.Wait(a)
	}
	assert.Less(t, total, 500*time.Millisecond)
}
