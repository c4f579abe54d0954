package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("redis: lock held by another worker")

type locker interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DeleteIfEquals(ctx context.Context, key, token string) (bool, error)
}

// Lock is a single-holder lease on a named resource.
type Lock struct {
	store locker
	key   string
	ttl   time.Duration
}

// NewLock creates a lock for resource with the given lease.
func NewLock(store locker, resource string, ttl time.Duration) *Lock {
	return &Lock{store: store, key: LockKey(resource), ttl: ttl}
}

// Acquire takes the lease and returns a release func, or ErrLockHeld.
func (l *Lock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		_, err := l.store.DeleteIfEquals(ctx, l.key, token)
		return err
	}, nil
}
