// Package postgres implements read access to the LMS tables the analytics
// are computed from, plus a migration set mirroring those tables for local
// development and integration environments.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConnectionClosed is returned by every call made after Close.
var ErrConnectionClosed = errors.New("postgres: connection pool is closed")

// Config holds PostgreSQL connection configuration.
// When URL is set it takes precedence over the discrete fields.
type Config struct {
	URL string

	Host     string
	Port     int
	Database string
	User     string
	Password string

	// SSLMode is one of disable, require, verify-ca, verify-full.
	SSLMode string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

// DefaultConfig returns the pool defaults for the analytics read path.
func DefaultConfig() Config {
	return Config{
		Host:              "localhost",
		Port:              5432,
		Database:          "lms",
		User:              "analytics",
		SSLMode:           "disable",
		MaxConns:          20,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
	}
}

// DSN returns the keyword/value connection string.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}

// PoolConfig parses the DSN and applies the non-zero pool settings on top.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	setIf(&pc.MaxConns, c.MaxConns)
	setIf(&pc.MinConns, c.MinConns)
	setIf(&pc.MaxConnLifetime, c.MaxConnLifetime)
	setIf(&pc.MaxConnIdleTime, c.MaxConnIdleTime)
	setIf(&pc.HealthCheckPeriod, c.HealthCheckPeriod)
	pc.ConnConfig.RuntimeParams["application_name"] = "engagement-analytics"
	return pc, nil
}

func setIf[T int32 | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

// Connection wraps the pgx pool used by the repositories.
type Connection struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// NewConnection creates the pool and verifies it with a ping.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	poolConfig, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}
	return &Connection{pool: pool}, nil
}

// Close closes the pool. Later calls are no-ops.
func (c *Connection) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.pool.Close()
}

func (c *Connection) live() (*pgxpool.Pool, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return c.pool, nil
}

// Ping checks if the database connection is alive.
func (c *Connection) Ping(ctx context.Context) error {
	pool, err := c.live()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// CheckHealth fails when the ping fails or every pool connection is acquired.
func (c *Connection) CheckHealth(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return err
	}
	stats := c.pool.Stat()
	if limit := stats.MaxConns(); limit > 0 && stats.AcquiredConns() >= limit {
		return fmt.Errorf("connection pool exhausted: %d/%d acquired", stats.AcquiredConns(), limit)
	}
	return nil
}

// Querier is satisfied by *Connection, *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pool, err := c.live()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, args...)
}

func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := c.live()
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

// QueryRow defers a closed-pool error to Scan, as pgx does.
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

// SendBatch sends queued queries in one round trip.
func (c *Connection) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return c.pool.SendBatch(ctx, b)
}

// Begin starts a transaction. It makes *Connection usable with pgx.BeginFunc.
func (c *Connection) Begin(ctx context.Context) (pgx.Tx, error) {
	pool, err := c.live()
	if err != nil {
		return nil, err
	}
	return pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
}

// IsNoRows checks if the error is a "no rows" error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
