// Package redis holds the Redis-backed pieces of the analytics service:
// the shared API rate limiter, high-risk alert publishing and the lock that
// keeps one risk sweep running at a time.
//
// Nothing computed by the analytics is cached here; every dashboard is
// assembled from the LMS tables on request.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrConnection is returned when Redis cannot be reached at start-up.
	ErrConnection = errors.New("redis: connection failed")

	// ErrSerialization is returned when a payload cannot be encoded.
	ErrSerialization = errors.New("redis: serialization failed")

	// ErrEmptyKey is returned when an empty key or channel is provided.
	ErrEmptyKey = errors.New("redis: key cannot be empty")
)

// Config holds Redis connection settings. DB is 0-15.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the settings used when the environment is silent.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns "host:port".
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// Key layout. Rate-limit counters and locks share the analytics: namespace;
// alert channels are read by other services and stay short.
const (
	PrefixRateLimit = "analytics:ratelimit:"
	PrefixLock      = "analytics:lock:"
	PrefixAlerts    = "alerts:"
)

// RateLimitKey returns the counter key for one client in one window.
func RateLimitKey(identifier string, window int64) string {
	return PrefixRateLimit + identifier + ":" + strconv.FormatInt(window, 10)
}

// LockKey returns the key guarding a named resource.
func LockKey(resource string) string { return PrefixLock + resource }

// AlertChannel returns the pub/sub channel for an alert topic.
func AlertChannel(topic string) string { return PrefixAlerts + topic }

// Client is the narrow set of Redis commands the service issues.
type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings Redis within cfg.DialTimeout.
func NewClient(cfg Config) (*Client, error) {
	rdb := redis.NewClient(cfg.options())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, cfg.Addr(), err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// Ping checks if Redis is reachable.
func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Publish JSON-encodes message and publishes it on channel.
func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	if channel == "" {
		return ErrEmptyKey
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return c.rdb.Publish(ctx, channel, data).Err()
}

// IncrWindow increments key and refreshes its expiry atomically, returning
// the new count.
func (c *Client) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// SetNX sets key to value only if it does not exist.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeleteIfEquals removes key only while it still holds token.
func (c *Client) DeleteIfEquals(ctx context.Context, key, token string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, c.rdb, []string{key}, token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
