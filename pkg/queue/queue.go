// Package queue provides the Redis-backed job queues, the query result
// cache, and the shared per-host politeness gate.
//
// Two durable FIFO lists drive the pipeline: crawl_queue holds URL strings
// and indexing_queue holds decimal doc ids. Delivery is at-least-once with
// no ack protocol; a worker that dies between pop and completion loses the
// job, which is acceptable because indexing is idempotent and stuck
// documents remain visible through their status.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout.
const (
	crawlQueueKey    = "crawl_queue"
	indexingQueueKey = "indexing_queue"
	cachePrefix      = "qcache:"
	politenessPrefix = "politeness:"
)

// ErrEmpty is returned by non-blocking pops on an empty queue.
var ErrEmpty = errors.New("queue is empty")

// IsEmpty returns true if the error indicates an empty queue.
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmpty)
}

// Config describes how to reach Redis.
type Config struct {
	// Host and Port locate the server. Port 0 uses 6379.
	Host string
	Port int
}

// Addr returns host:port.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// Client wraps the Redis connection. Safe for concurrent use.
type Client struct {
	rdb *redis.Client
}

// New opens a client for cfg. Connectivity is verified by Ping, which
// callers treat as fatal at startup.
func New(cfg Config) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{Addr: cfg.Addr()})}
}

// NewFromRedis wraps an existing Redis client (used by tests).
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// PushURL appends one URL to the tail of the crawl queue.
func (c *Client) PushURL(ctx context.Context, url string) error {
	if err := c.rdb.RPush(ctx, crawlQueueKey, url).Err(); err != nil {
		return fmt.Errorf("push crawl url: %w", err)
	}
	return nil
}

// PushURLs appends URLs to the tail of the crawl queue in one round trip.
func (c *Client) PushURLs(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	vals := make([]interface{}, len(urls))
	for i, u := range urls {
		vals[i] = u
	}
	if err := c.rdb.RPush(ctx, crawlQueueKey, vals...).Err(); err != nil {
		return fmt.Errorf("push crawl urls: %w", err)
	}
	return nil
}

// PopURL removes and returns the head of the crawl queue. An empty queue
// returns ErrEmpty; the crawler polls.
func (c *Client) PopURL(ctx context.Context) (string, error) {
	url, err := c.rdb.LPop(ctx, crawlQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("pop crawl url: %w", err)
	}
	return url, nil
}

// SeedIfEmpty pushes url when the crawl queue is empty, and reports
// whether it seeded. Racing seeders may both push; the crawler's reserve
// step collapses the duplicate.
func (c *Client) SeedIfEmpty(ctx context.Context, url string) (bool, error) {
	n, err := c.rdb.LLen(ctx, crawlQueueKey).Result()
	if err != nil {
		return false, fmt.Errorf("crawl queue length: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if err := c.PushURL(ctx, url); err != nil {
		return false, err
	}
	return true, nil
}

// CrawlQueueLen reports the crawl queue depth.
func (c *Client) CrawlQueueLen(ctx context.Context) (int64, error) {
	n, err := c.rdb.LLen(ctx, crawlQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("crawl queue length: %w", err)
	}
	return n, nil
}

// IndexingQueueLen reports the indexing queue depth.
func (c *Client) IndexingQueueLen(ctx context.Context) (int64, error) {
	n, err := c.rdb.LLen(ctx, indexingQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("indexing queue length: %w", err)
	}
	return n, nil
}

// PushDocID appends a doc id to the tail of the indexing queue.
func (c *Client) PushDocID(ctx context.Context, id int64) error {
	if err := c.rdb.RPush(ctx, indexingQueueKey, strconv.FormatInt(id, 10)).Err(); err != nil {
		return fmt.Errorf("push doc id: %w", err)
	}
	return nil
}

// PopDocID blocks until a doc id is available and returns it. It unblocks
// with the context's error on cancellation.
func (c *Client) PopDocID(ctx context.Context) (int64, error) {
	vals, err := c.rdb.BLPop(ctx, 0, indexingQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("pop doc id: %w", err)
	}
	// BLPop returns [key, value].
	if len(vals) != 2 {
		return 0, fmt.Errorf("pop doc id: unexpected reply %v", vals)
	}
	id, err := strconv.ParseInt(vals[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pop doc id: non-numeric payload %q", vals[1])
	}
	return id, nil
}

// CachedResults returns the cached payload for a normalized query, or
// ErrEmpty when absent.
func (c *Client) CachedResults(ctx context.Context, query string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, cachePrefix+query).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return data, nil
}

// CacheResults stores the payload for a normalized query with a TTL.
func (c *Client) CacheResults(ctx context.Context, query string, payload []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, cachePrefix+query, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// ReserveHost claims the politeness slot for host for the given interval.
// The claim is shared across all crawler instances: SET NX PX succeeds for
// exactly one caller per interval. Callers that lose re-queue the URL
// instead of blocking.
func (c *Client) ReserveHost(ctx context.Context, host string, interval time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, politenessPrefix+host, 1, interval).Result()
	if err != nil {
		return false, fmt.Errorf("reserve host %s: %w", host, err)
	}
	return ok, nil
}
