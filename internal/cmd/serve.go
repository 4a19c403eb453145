package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loupelabs/loupe/internal/server"
	"github.com/loupelabs/loupe/internal/server/handlers"
	"github.com/loupelabs/loupe/pkg/archive"
	"github.com/loupelabs/loupe/pkg/index"
	"github.com/loupelabs/loupe/pkg/metastore"
	"github.com/loupelabs/loupe/pkg/queue"
	"github.com/loupelabs/loupe/pkg/ranker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search HTTP API",
	Long: `Serve ranked search over HTTP.

GET /search?q=... runs a BM25-ranked query against the inverted index,
with result sets cached in Redis. The index is opened read-only, so
serve runs alongside a live index process and sees its state as of
startup. Health endpoints report per-dependency readiness.

The command runs until SIGINT or SIGTERM, then drains in-flight
requests.

Example:
  loupe serve
  RANKER_PORT=9090 loupe serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	store, err := metastore.Connect(ctx, pgConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	q := queue.New(redisConfig(cfg))
	defer q.Close()
	if err := q.Ping(ctx); err != nil {
		return fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr(), err)
	}

	idx, err := index.Open(index.Options{Path: cfg.Index.Path, ReadOnly: true, Logger: logger})
	if err != nil {
		return fmt.Errorf("open index read-only (has 'loupe index' run yet?): %w", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			logger.Warn("close index", zap.Error(err))
		}
	}()

	reader := archive.NewReader(cfg.Archive.Root, 0)

	searcher := ranker.New(idx, store, q, reader, logger, ranker.Config{
		CacheTTL: cfg.Ranker.CacheTTL,
	})

	health := handlers.NewHealth(server.ServiceName, versionInfo.Version, logger)
	health.Register("postgres", postgresHealthChecker{store: store})
	health.Register("redis", redisHealthChecker{queue: q})
	health.Register("index", indexHealthChecker{index: idx})

	srv := server.New(cfg.Server.Host, cfg.Server.Port, server.Options{
		Searcher:       searcher,
		Health:         health,
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	return srv.Start(ctx)
}

// pinger is the probe surface of the metastore and queue clients.
type pinger interface {
	Ping(ctx context.Context) error
}

// postgresHealthChecker reports metadata store connectivity.
type postgresHealthChecker struct {
	store pinger
}

func (c postgresHealthChecker) CheckHealth(ctx context.Context) error {
	if c.store == nil {
		return errors.New("postgres: store not initialized")
	}
	return c.store.Ping(ctx)
}

// redisHealthChecker reports queue and cache connectivity.
type redisHealthChecker struct {
	queue pinger
}

func (c redisHealthChecker) CheckHealth(ctx context.Context) error {
	if c.queue == nil {
		return errors.New("redis: client not initialized")
	}
	return c.queue.Ping(ctx)
}

// termCounter is the probe surface of the index store.
type termCounter interface {
	TermCount() (int, error)
}

// indexHealthChecker reports that the inverted index is readable.
type indexHealthChecker struct {
	index termCounter
}

func (c indexHealthChecker) CheckHealth(ctx context.Context) error {
	if c.index == nil {
		return errors.New("index: not opened")
	}
	if _, err := c.index.TermCount(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	return nil
}
