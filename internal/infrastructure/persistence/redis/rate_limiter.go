package redis

import (
	"context"
	"log/slog"
	"time"
)

// counter is the part of Client the limiter needs.
type counter interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimiter is a fixed-window limiter shared by every API instance.
// Redis errors fail open: the request is allowed and the error logged.
type RateLimiter struct {
	store  counter
	limit  int64
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewRateLimiter allows limit requests per window per client key.
func NewRateLimiter(store counter, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		store:  store,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// Allow reports whether the client identified by key may proceed.
func (l *RateLimiter) Allow(ctx context.Context, key string) bool {
	if l.limit <= 0 {
		return true
	}

	slot := l.now().UnixNano() / int64(l.window)
	n, err := l.store.IncrWindow(ctx, RateLimitKey(key, slot), l.window)
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
		return true
	}
	return n <= l.limit
}
