// Package redistest provides helpers for Redis integration tests.
//
// Tests using this package should be tagged with //go:build integration
// and run against a disposable Redis:
//
//	TEST_REDIS_ADDR=localhost:6379 go test -tags integration ./...
package redistest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// EnvAddr is the environment variable naming the test Redis instance.
const EnvAddr = "TEST_REDIS_ADDR"

// SkipIfUnavailable skips the test when no test Redis is configured.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if os.Getenv(EnvAddr) == "" {
		t.Skipf("skipping: %s not set", EnvAddr)
	}
}

// Client connects to the test Redis, flushes it, and registers cleanup.
func Client(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: os.Getenv(EnvAddr)})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("skipping: test redis unreachable: %v", err)
	}

	if err := rdb.FlushDB(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Fatalf("flush test redis: %v", err)
	}

	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
