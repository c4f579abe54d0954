// Package circuitbreaker stops calling a dependency that keeps failing.
//
// The breaker sits in front of the remote model server. After Trip
// consecutive failures it opens and rejects calls for Cooldown; the risk
// estimator then answers from the formula. Once the cooldown has passed a
// single probe is let through: success closes the circuit, failure opens it
// for another cooldown.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen rejects calls during the cooldown.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrProbeInFlight rejects calls while the half-open probe is running.
	ErrProbeInFlight = errors.New("circuit breaker probe in flight")
)

// IsRejected reports whether err came from the breaker rather than the call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrProbeInFlight)
}

// Settings configure a breaker. Zero Trip and Cooldown take 5 and 30s.
type Settings struct {
	Name     string
	Trip     int
	Cooldown time.Duration

	// Counts decides which errors are failures. Nil counts every error.
	Counts func(error) bool

	// OnChange is called with the lock held; it must not call the breaker.
	OnChange func(name string, from, to State)
}

// CircuitBreaker guards calls to one dependency. Safe for concurrent use.
type CircuitBreaker struct {
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// New creates a closed breaker.
func New(s Settings) *CircuitBreaker {
	if s.Trip <= 0 {
		s.Trip = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{settings: s, now: time.Now}
}

// ModelServerBreaker trips after 3 consecutive failures and probes after 30s.
// Cancellation by the caller is not a failure.
func ModelServerBreaker(onChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:     "model-server",
		Trip:     3,
		Cooldown: 30 * time.Second,
		Counts:   func(err error) bool { return !errors.Is(err, context.Canceled) },
		OnChange: onChange,
	})
}

// Execute runs fn unless the circuit rejects it, and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.settings.Cooldown {
			return ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
		return nil
	case StateHalfOpen:
		return ErrProbeInFlight
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && (cb.settings.Counts == nil || cb.settings.Counts(err))
	switch {
	case !failed:
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.moveTo(StateClosed)
		}
	case cb.state == StateHalfOpen:
		cb.moveTo(StateOpen)
	default:
		cb.failures++
		if cb.failures >= cb.settings.Trip {
			cb.moveTo(StateOpen)
		}
	}
}

// moveTo must be called with mu held.
func (cb *CircuitBreaker) moveTo(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.settings.OnChange != nil {
		cb.settings.OnChange(cb.settings.Name, from, to)
	}
}

// State returns the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.settings.Name
}
