package cmd

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/loupelabs/loupe/pkg/queue"
)

var seedCmd = &cobra.Command{
	Use:   "seed [url...]",
	Short: "Push URLs onto the crawl queue",
	Long: `Push URLs onto the tail of the crawl queue.

With no arguments the configured SEED_URL is pushed. Workers pick the
URLs up on their next poll; there is no need to restart anything.

--if-empty seeds only when the queue is empty, which is what the crawl
command does automatically on startup.

Examples:
  loupe seed
  loupe seed https://en.wikipedia.org/wiki/Ada_Lovelace
  loupe seed --if-empty https://en.wikipedia.org/wiki/Main_Page`,
	RunE: runSeed,
}

var seedOnlyIfEmpty bool

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().BoolVar(&seedOnlyIfEmpty, "if-empty", false, "Seed only when the crawl queue is empty")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	urls := args
	if len(urls) == 0 {
		if cfg.Crawler.SeedURL == "" {
			return errors.New("no URLs given and SEED_URL is not set")
		}
		urls = []string{cfg.Crawler.SeedURL}
	}
	for _, u := range urls {
		if err := validateSeedURL(u); err != nil {
			return err
		}
	}

	q := queue.New(redisConfig(cfg))
	defer q.Close()
	if err := q.Ping(ctx); err != nil {
		return fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr(), err)
	}

	if seedOnlyIfEmpty {
		if len(urls) != 1 {
			return errors.New("--if-empty takes exactly one URL")
		}
		seeded, err := q.SeedIfEmpty(ctx, urls[0])
		if err != nil {
			return fmt.Errorf("seed crawl queue: %w", err)
		}
		if seeded {
			cmd.Printf("seeded crawl queue with %s\n", urls[0])
		} else {
			cmd.Println("crawl queue not empty; nothing seeded")
		}
		return nil
	}

	if err := q.PushURLs(ctx, urls); err != nil {
		return fmt.Errorf("push urls: %w", err)
	}
	cmd.Printf("queued %d url(s)\n", len(urls))
	return nil
}

// validateSeedURL rejects URLs the crawler would discard anyway, so
// typos surface here instead of as silent drops in the worker logs.
func validateSeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}
