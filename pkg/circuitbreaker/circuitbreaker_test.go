package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("model server down")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(s Settings) (*CircuitBreaker, *clock) {
	c := &clock{t: time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)}
	if s.Name == "" {
		s.Name = "test"
	}
	cb := New(s)
	cb.now = c.now
	return cb, c
}

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestBreaker_OpensAfterTrip(t *testing.T) {
	cb, _ := newTestBreaker(Settings{Trip: 2})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(Settings{Trip: 2})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, ok)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	cb, c := newTestBreaker(Settings{Trip: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	c.advance(59 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	c.advance(time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	cb, c := newTestBreaker(Settings{Trip: 1, Cooldown: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	c.advance(time.Second)
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
}

func TestBreaker_SingleProbe(t *testing.T) {
	cb, c := newTestBreaker(Settings{Trip: 1, Cooldown: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	c.advance(time.Second)

	var inner error
	err := cb.Execute(ctx, func(ctx context.Context) error {
		inner = cb.Execute(ctx, ok)
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrProbeInFlight)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_OnChange(t *testing.T) {
	var transitions []string
	cb, _ := newTestBreaker(Settings{Trip: 1, OnChange: func(name string, from, to State) {
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
	}})

	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, []string{"test:closed->open"}, transitions)
}

func TestModelServerBreaker_IgnoresCancellation(t *testing.T) {
	cb := ModelServerBreaker(nil)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "model-server", cb.Name())
}
