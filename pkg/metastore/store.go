// Package metastore persists document metadata in Postgres: URL identity,
// crawl status, the archive locator, and indexing statistics.
package metastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Document lifecycle statuses.
const (
	StatusPending          = "pending"
	StatusProcessing       = "processing"
	StatusCrawled          = "crawled"
	StatusCrawledNotQueued = "crawled_not_queued"
	StatusError            = "error"
)

// Defaults for startup connection retry.
const (
	DefaultConnectAttempts = 10
	DefaultConnectBackoff  = 5 * time.Second
)

// Config describes how to reach Postgres.
type Config struct {
	// ConnString is a full connection string. When set it wins over the
	// individual fields below.
	ConnString string

	// Host, Port, Name, User, Password compose a connection string when
	// ConnString is empty.
	Host     string
	Port     int
	Name     string
	User     string
	Password string

	// ConnectAttempts and ConnectBackoff bound the startup ping loop.
	// Zero values use the defaults.
	ConnectAttempts int
	ConnectBackoff  time.Duration
}

// DSN returns the effective connection string.
func (c Config) DSN() string {
	if s := strings.TrimSpace(c.ConnString); s != "" {
		return s
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		c.Host, c.Port, c.Name, c.User, c.Password)
}

// Store wraps a pgx connection pool. All methods are safe for concurrent
// use; each operation is a single statement and therefore a single
// implicit transaction.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open creates a pool without verifying connectivity. Callers that
// probe lazily (the doctor command, readiness checks) dial through
// Ping; workers that need the store up front use Connect instead.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Connect opens a pool and pings it with bounded retry, logging each
// failed attempt. Infrastructure that is still down after the last
// attempt surfaces as an error; workers treat that as fatal.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = DefaultConnectAttempts
	}
	backoff := cfg.ConnectBackoff
	if backoff <= 0 {
		backoff = DefaultConnectBackoff
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = pool.Ping(ctx)
		if lastErr == nil {
			return &Store{pool: pool}, nil
		}

		logger.Warn("postgres not ready",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr))

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	pool.Close()
	return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", attempts, lastErr)
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
