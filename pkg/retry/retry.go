// Package retry runs an operation again after transient failures, waiting an
// exponentially growing, jittered delay between attempts.
//
// Operations mark their errors: Retryable errors are attempted again,
// Permanent and unmarked errors stop immediately. The marker is stripped from
// the error Do returns.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

type marked struct {
	err   error
	again bool
}

func (m *marked) Error() string { return m.err.Error() }
func (m *marked) Unwrap() error { return m.err }

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, again: true}
}

// Permanent marks err as final.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err}
}

// IsRetryable reports whether err carries the Retryable marker.
func IsRetryable(err error) bool {
	var m *marked
	return errors.As(err, &m) && m.again
}

func strip(err error) error {
	if m, ok := err.(*marked); ok {
		return m.err
	}
	return err
}

// Backoff describes how often and how patiently to retry.
type Backoff struct {
	// Attempts counts the first call. Values below 1 mean one call.
	Attempts int

	// Base is the wait before the second attempt; it doubles per attempt up to Cap.
	Base time.Duration
	Cap  time.Duration

	// Jitter spreads each wait by up to +/- this fraction of it.
	Jitter float64

	// OnRetry, when set, is told about each failed attempt before the wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// ModelServer is tuned for prediction calls: three attempts whose added
// waits stay under half a second.
func ModelServer(onRetry func(attempt int, err error, wait time.Duration)) Backoff {
	return Backoff{
		Attempts: 3,
		Base:     50 * time.Millisecond,
		Cap:      400 * time.Millisecond,
		Jitter:   0.2,
		OnRetry:  onRetry,
	}
}

// Wait returns the pause after the given failed attempt (1-based), before jitter.
func (b Backoff) Wait(attempt int) time.Duration {
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Cap > 0 && d >= b.Cap {
			return b.Cap
		}
	}
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}

func (b Backoff) jittered(d time.Duration) time.Duration {
	if b.Jitter <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * b.Jitter * (rand.Float64()*2 - 1)
	return max(0, d+time.Duration(spread))
}

// Do calls op until it succeeds, fails without the Retryable marker, the
// attempts run out or ctx ends. The last operation error wins over ctx.Err().
func (b Backoff) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(1, b.Attempts)

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return strip(last)
			}
			return err
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if !IsRetryable(last) || attempt >= attempts {
			return strip(last)
		}

		wait := b.jittered(b.Wait(attempt))
		if b.OnRetry != nil {
			b.OnRetry(attempt, last, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return strip(last)
		case <-t.C:
		}
	}
}
