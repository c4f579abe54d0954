package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// memStore is an in-memory stand-in for Client.
type memStore struct {
	mu        sync.Mutex
	counts    map[string]int64
	values    map[string]string
	published map[string][]byte
	err       error
}

func newMemStore() *memStore {
	return &memStore{counts: map[string]int64{}, values: map[string]string{}, published: map[string][]byte{}}
}

func (m *memStore) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memStore) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

func (m *memStore) DeleteIfEquals(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[key] != token {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memStore) Publish(_ context.Context, channel string, message any) error {
	if m.err != nil {
		return m.err
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.published[channel] = data
	m.mu.Unlock()
	return nil
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	store := newMemStore()
	l := NewRateLimiter(store, 2, time.Minute, nil)
	clock := time.Date(2025, 10, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return clock }

	ctx := context.Background()
	assert.True(t, l.Allow(ctx, "10.0.0.1"))
	assert.True(t, l.Allow(ctx, "10.0.0.1"))
	assert.False(t, l.Allow(ctx, "10.0.0.1"))
	assert.True(t, l.Allow(ctx, "10.0.0.2"))

	clock = clock.Add(time.Minute)
	assert.True(t, l.Allow(ctx, "10.0.0.1"))
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	l := NewRateLimiter(store, 1, time.Minute, nil)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(context.Background(), "client"))
	}
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	l := NewRateLimiter(newMemStore(), 0, time.Minute, nil)
	assert.True(t, l.Allow(context.Background(), "client"))
}

func TestAlertPublisher_PublishHighRisk(t *testing.T) {
	store := newMemStore()
	p := NewAlertPublisher(store)
	require.Equal(t, "alerts:risk.high", p.Channel())

	ev := shared.NewHighRiskDetectedEvent(7, 3, 0.82, "HIGH", "Improve attendance", true)
	require.NoError(t, p.PublishHighRisk(context.Background(), ev))

	var got shared.HighRiskDetectedEvent
	require.NoError(t, json.Unmarshal(store.published["alerts:risk.high"], &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, shared.EventHighRiskDetected, got.Type)
	assert.Equal(t, int64(7), got.StudentID)
	assert.Equal(t, "3:7", got.AggregateId)
}

func TestAlertPublisher_PublishSweepCompleted(t *testing.T) {
	store := newMemStore()
	p := NewAlertPublisher(store)

	ev := shared.NewRiskSweepCompletedEvent("run-1", 2, 40, 3, time.Second)
	require.NoError(t, p.PublishSweepCompleted(context.Background(), ev))

	var got shared.RiskSweepCompletedEvent
	require.NoError(t, json.Unmarshal(store.published["alerts:risk.sweep_completed"], &got))
	assert.Equal(t, 40, got.Registrations)
	assert.Equal(t, "run-1", got.AggregateId)
}

func TestAlertPublisher_Error(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("broken pipe")
	p := NewAlertPublisher(store)

	err := p.PublishHighRisk(context.Background(), shared.NewHighRiskDetectedEvent(1, 2, 0.9, "HIGH", "", false))
	assert.ErrorIs(t, err, store.err)
}

func TestLock_SingleHolder(t *testing.T) {
	store := newMemStore()
	l := NewLock(store, "risk-sweep", time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	release2, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "analytics:ratelimit:ip:42", RateLimitKey("ip", 42))
	assert.Equal(t, "analytics:lock:risk-sweep", LockKey("risk-sweep"))
	assert.Equal(t, "alerts:risk.high", AlertChannel(TopicHighRisk))
}
