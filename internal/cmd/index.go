package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loupelabs/loupe/pkg/archive"
	"github.com/loupelabs/loupe/pkg/index"
	"github.com/loupelabs/loupe/pkg/indexer"
	"github.com/loupelabs/loupe/pkg/metastore"
	"github.com/loupelabs/loupe/pkg/queue"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run indexing workers over crawled documents",
	Long: `Run a pool of indexing workers.

Workers pop doc ids from the Redis indexing queue, re-read the archived
page through its stored locator, tokenize it, and merge the term
frequencies into the on-disk inverted index. Indexing is idempotent, so
replayed ids are harmless.

Exactly one index process owns the index directory; it holds the badger
lock for the life of the command. The command runs until SIGINT or
SIGTERM.

Example:
  loupe index
  INDEXER_WORKERS=4 loupe index`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	q := queue.New(redisConfig(cfg))
	defer q.Close()
	if err := q.Ping(ctx); err != nil {
		return fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr(), err)
	}

	store, err := metastore.Connect(ctx, pgConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	idx, err := index.Open(index.Options{Path: cfg.Index.Path, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(); err != nil {
			logger.Warn("close index", zap.Error(err))
		}
	}()

	reader := archive.NewReader(cfg.Archive.Root, 0)

	worker := indexer.New(q, store, reader, idx, logger, indexer.Config{
		Workers: cfg.Indexer.Workers,
	})

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
