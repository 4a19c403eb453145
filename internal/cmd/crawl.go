package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/pkg/archive"
	"github.com/loupelabs/loupe/pkg/crawler"
	"github.com/loupelabs/loupe/pkg/fetch"
	"github.com/loupelabs/loupe/pkg/metastore"
	"github.com/loupelabs/loupe/pkg/queue"
	"github.com/loupelabs/loupe/pkg/scope"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run crawl workers against the shared frontier",
	Long: `Run a pool of crawl workers.

Workers pop URLs from the Redis crawl queue, fetch them politely (one
request per host per CRAWL_DELAY across all processes), append the page
to the WARC archive, record the locator in Postgres, and hand the doc
id to the indexing queue. Outlinks feed back into the frontier.

On first start the frontier is seeded with SEED_URL unless --no-seed is
given. The command runs until SIGINT or SIGTERM.

Example:
  loupe crawl
  loupe crawl --seed https://en.wikipedia.org/wiki/Go_(programming_language)
  ALLOWED_HOSTS='*.wikipedia.org' loupe crawl`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

var (
	crawlSeedURL string
	crawlNoSeed  bool
)

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVar(&crawlSeedURL, "seed", "", "Override the configured seed URL")
	crawlCmd.Flags().BoolVar(&crawlNoSeed, "no-seed", false, "Skip seeding the crawl queue")
}

func runCrawl(cmd *cobra.Command, args []string) error {
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

	if !crawlNoSeed {
		if err := seedFrontier(ctx, q); err != nil {
			return err
		}
	}

	w, err := archive.OpenWriter(archivePath(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("close archive", zap.Error(err))
		}
	}()

	hostScope, err := buildScope(cfg)
	if err != nil {
		return err
	}

	fetcher := fetch.New(fetch.Config{
		Timeout:      cfg.Crawler.FetchTimeout,
		UserAgent:    cfg.Crawler.UserAgent,
		MaxBodyBytes: cfg.Crawler.FetchMaxBytes,
	})

	worker := crawler.New(q, store, w, fetcher, logger, crawler.Config{
		Workers:         cfg.Crawler.Workers,
		PollInterval:    cfg.Crawler.PollInterval,
		HostInterval:    cfg.Crawler.HostInterval,
		RateLimit:       cfg.Crawler.RateLimit,
		ExtractLinks:    cfg.Crawler.ExtractLinks,
		MaxLinksPerPage: cfg.Crawler.MaxLinksPerPage,
		Scope:           hostScope,
	})

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// seedFrontier pushes the seed URL when the crawl queue is empty, so a
// fresh deployment starts crawling without manual intervention. A
// non-empty queue is left alone; restarts must not re-inject the seed.
func seedFrontier(ctx context.Context, q *queue.Client) error {
	seed := cfg.Crawler.SeedURL
	if crawlSeedURL != "" {
		seed = crawlSeedURL
	}
	if seed == "" {
		return nil
	}
	if err := validateSeedURL(seed); err != nil {
		return err
	}

	seeded, err := q.SeedIfEmpty(ctx, seed)
	if err != nil {
		return fmt.Errorf("seed crawl queue: %w", err)
	}
	if seeded {
		logger.Info("seeded crawl queue", zap.String("url", seed))
	}
	return nil
}

// buildScope compiles the configured host patterns. Returns nil when no
// patterns are set so the crawler skips scope checks entirely.
func buildScope(c *config.Config) (crawler.Scope, error) {
	if len(c.Crawler.AllowedHosts) == 0 && len(c.Crawler.BlockedHosts) == 0 {
		return nil, nil
	}
	hs, err := scope.New(scope.Config{
		Allow: c.Crawler.AllowedHosts,
		Deny:  c.Crawler.BlockedHosts,
	})
	if err != nil {
		return nil, fmt.Errorf("host scope: %w", err)
	}
	return hs, nil
}
