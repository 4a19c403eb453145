// Package crawler implements the queue-driven crawl worker pool.
//
// Each worker loops over the shared crawl queue: pop a URL, reserve its
// document row, fetch the page, append the response to the WARC archive,
// record the archive locator, and enqueue the document for indexing.
// Workers share every collaborator: the archive writer serializes appends
// internally, the metadata store relies on row-level isolation, and the
// per-host politeness gate lives in the queue store so it holds across
// crawler instances.
package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/loupelabs/loupe/pkg/fetch"
	"github.com/loupelabs/loupe/pkg/links"
	"github.com/loupelabs/loupe/pkg/metastore"
	"github.com/loupelabs/loupe/pkg/queue"
)

// MinURLLength is the shortest URL the crawler accepts from the queue.
const MinURLLength = 10

// requeueBackoff briefly idles a worker after losing a politeness claim,
// so a queue full of one host does not spin against the gate.
const requeueBackoff = 250 * time.Millisecond

// enqueueRetryDelay separates attempts to push a doc id to the indexing
// queue.
const enqueueRetryDelay = 100 * time.Millisecond

// Queue is the slice of the job queue the crawler uses.
type Queue interface {
	// PopURL returns the next URL, or queue.ErrEmpty.
	PopURL(ctx context.Context) (string, error)

	// PushURLs appends URLs to the crawl queue tail.
	PushURLs(ctx context.Context, urls []string) error

	// PushDocID appends a doc id to the indexing queue tail.
	PushDocID(ctx context.Context, id int64) error

	// ReserveHost claims the politeness slot for host for interval.
	ReserveHost(ctx context.Context, host string, interval time.Duration) (bool, error)
}

// Store is the slice of the metadata store the crawler uses.
type Store interface {
	Reserve(ctx context.Context, url string) (int64, error)
	MarkCrawled(ctx context.Context, id int64, file string, offset int64, length int, contentHash string) error
	MarkFailed(ctx context.Context, id int64) error
	MarkNotQueued(ctx context.Context, id int64) error
}

// Archive appends fetched pages to the WARC archive.
type Archive interface {
	WriteRecord(ctx context.Context, targetURI string, payload []byte) (offset int64, length int, err error)
	Basename() string
}

// Fetcher retrieves pages over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Scope decides which hosts the crawl may touch. It gates both URLs
// popped from the queue and outlinks about to be pushed, so a configured
// crawl stays inside its host allowlist even when the queue already
// holds strays.
type Scope interface {
	Allows(host string) bool
}

// Config configures crawler behavior.
type Config struct {
	// Workers is the number of concurrent fetch workers.
	// Default: 4
	Workers int

	// PollInterval is how long a worker sleeps when the crawl queue is
	// empty.
	// Default: 5s
	PollInterval time.Duration

	// HostInterval is the minimum spacing between fetches of the same
	// host, enforced across all crawler instances. Zero disables the
	// per-host gate.
	// Default: 1s
	HostInterval time.Duration

	// EnqueueAttempts bounds retries when pushing a crawled doc id to the
	// indexing queue before falling back to crawled_not_queued.
	// Default: 3
	EnqueueAttempts int

	// RateLimit is the maximum aggregate fetches per second across all
	// workers. Zero means unlimited.
	// Default: 0
	RateLimit float64

	// ExtractLinks re-seeds the crawl queue with outlinks found in
	// fetched pages.
	// Default: true (set by DefaultConfig; the zero value disables it)
	ExtractLinks bool

	// MaxLinksPerPage caps outlinks taken from a single page.
	// Default: 50
	MaxLinksPerPage int

	// Scope restricts crawling to matching hosts. Nil admits every host.
	// Default: nil
	Scope Scope
}

// DefaultConfig returns the default crawler configuration.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		PollInterval:    5 * time.Second,
		HostInterval:    time.Second,
		EnqueueAttempts: 3,
		RateLimit:       0,
		ExtractLinks:    true,
		MaxLinksPerPage: 50,
	}
}

// Stats are aggregate counters across all workers.
type Stats struct {
	// Crawled is the number of documents fetched, archived, and marked.
	Crawled int64

	// Failed counts fetch, archive, or metadata failures.
	Failed int64

	// Duplicates counts URLs skipped because another worker reserved
	// them first.
	Duplicates int64

	// Discarded counts malformed or non-http URLs dropped outright.
	Discarded int64

	// Requeued counts URLs pushed back after losing a politeness claim.
	Requeued int64

	// OutOfScope counts URLs dropped by the host scope.
	OutOfScope int64

	// LinksQueued counts outlinks pushed onto the crawl queue.
	LinksQueued int64
}

// Worker runs the crawl loop. Create one Worker per process and run it
// once; the worker fans out internally.
type Worker struct {
	queue   Queue
	store   Store
	archive Archive
	fetcher Fetcher
	logger  *zap.Logger
	config  Config

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter

	crawled     atomic.Int64
	failed      atomic.Int64
	duplicates  atomic.Int64
	discarded   atomic.Int64
	requeued    atomic.Int64
	outOfScope  atomic.Int64
	linksQueued atomic.Int64
}

// New creates a crawl worker pool. Zero-valued config fields fall back to
// defaults; ExtractLinks keeps whatever the caller set.
func New(q Queue, s Store, a Archive, f Fetcher, logger *zap.Logger, cfg Config) *Worker {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.EnqueueAttempts <= 0 {
		cfg.EnqueueAttempts = def.EnqueueAttempts
	}
	if cfg.MaxLinksPerPage <= 0 {
		cfg.MaxLinksPerPage = def.MaxLinksPerPage
	}

	w := &Worker{
		queue:   q,
		store:   s,
		archive: a,
		fetcher: f,
		logger:  logger,
		config:  cfg,
	}

	if cfg.RateLimit > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return w
}

// Run blocks until the context is cancelled, then returns the context's
// error once every worker has finished its in-flight URL.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("crawler starting",
		zap.Int("workers", w.config.Workers),
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Duration("host_interval", w.config.HostInterval),
		zap.Bool("extract_links", w.config.ExtractLinks))

	var wg sync.WaitGroup
	for i := 0; i < w.config.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, w.logger.With(zap.Int("worker", id)))
		}(i)
	}
	wg.Wait()

	stats := w.Stats()
	w.logger.Info("crawler stopped",
		zap.Int64("crawled", stats.Crawled),
		zap.Int64("failed", stats.Failed),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("discarded", stats.Discarded),
		zap.Int64("out_of_scope", stats.OutOfScope),
		zap.Int64("links_queued", stats.LinksQueued))

	return ctx.Err()
}

// Stats returns a snapshot of the aggregate counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Crawled:     w.crawled.Load(),
		Failed:      w.failed.Load(),
		Duplicates:  w.duplicates.Load(),
		Discarded:   w.discarded.Load(),
		Requeued:    w.requeued.Load(),
		OutOfScope:  w.outOfScope.Load(),
		LinksQueued: w.linksQueued.Load(),
	}
}

func (w *Worker) loop(ctx context.Context, logger *zap.Logger) {
	for ctx.Err() == nil {
		w.step(ctx, logger)
	}
}

// step performs one queue pop and, when a URL arrives, processes it.
// Errors never escape: a bad URL or a failed fetch must not stop the loop.
func (w *Worker) step(ctx context.Context, logger *zap.Logger) {
	rawURL, err := w.queue.PopURL(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if !queue.IsEmpty(err) {
			logger.Error("pop crawl url", zap.Error(err))
		}
		sleepCtx(ctx, w.config.PollInterval)
		return
	}

	w.process(ctx, logger, rawURL)
}

func (w *Worker) process(ctx context.Context, logger *zap.Logger, rawURL string) {
	start := time.Now()

	host, ok := validateURL(rawURL)
	if !ok {
		w.discarded.Add(1)
		logger.Debug("discarding invalid url", zap.String("url", rawURL))
		return
	}

	if w.config.Scope != nil && !w.config.Scope.Allows(host) {
		w.outOfScope.Add(1)
		logger.Debug("dropping out-of-scope url", zap.String("url", rawURL), zap.String("host", host))
		return
	}

	// Politeness comes before reserve: a denied claim re-queues the URL,
	// and a reserved URL would come back as a duplicate forever.
	if w.config.HostInterval > 0 {
		claimed, err := w.queue.ReserveHost(ctx, host, w.config.HostInterval)
		if err != nil {
			logger.Error("reserve host", zap.String("host", host), zap.Error(err))
			sleepCtx(ctx, w.config.PollInterval)
			return
		}
		if !claimed {
			w.requeued.Add(1)
			if err := w.queue.PushURLs(ctx, []string{rawURL}); err != nil {
				logger.Error("requeue url", zap.String("url", rawURL), zap.Error(err))
			}
			sleepCtx(ctx, requeueBackoff)
			return
		}
	}

	docID, err := w.store.Reserve(ctx, rawURL)
	if err != nil {
		if metastore.IsDuplicateURL(err) {
			w.duplicates.Add(1)
			logger.Debug("skipping duplicate url", zap.String("url", rawURL))
			return
		}
		logger.Error("reserve url", zap.String("url", rawURL), zap.Error(err))
		return
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
	}

	res, err := w.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		w.failed.Add(1)
		logger.Warn("fetch failed", zap.String("url", rawURL), zap.Int64("doc_id", docID), zap.Error(err))
		w.markFailed(ctx, logger, docID)
		return
	}

	offset, length, err := w.archive.WriteRecord(ctx, rawURL, res.Body)
	if err != nil {
		w.failed.Add(1)
		logger.Error("archive write failed", zap.String("url", rawURL), zap.Int64("doc_id", docID), zap.Error(err))
		w.markFailed(ctx, logger, docID)
		return
	}

	sum := sha256.Sum256(res.Body)
	if err := w.store.MarkCrawled(ctx, docID, w.archive.Basename(), offset, length, hex.EncodeToString(sum[:])); err != nil {
		// The record is in the archive but the row still says processing;
		// the document stays visible as stuck rather than silently lost.
		w.failed.Add(1)
		logger.Error("mark crawled", zap.Int64("doc_id", docID), zap.Error(err))
		return
	}

	if err := w.enqueueIndex(ctx, docID); err != nil {
		logger.Error("enqueue for indexing failed",
			zap.Int64("doc_id", docID),
			zap.Int("attempts", w.config.EnqueueAttempts),
			zap.Error(err))
		if err := w.store.MarkNotQueued(ctx, docID); err != nil {
			logger.Error("mark not queued", zap.Int64("doc_id", docID), zap.Error(err))
		}
	}

	w.crawled.Add(1)
	logger.Info("crawled",
		zap.String("url", rawURL),
		zap.Int64("doc_id", docID),
		zap.Int64("offset", offset),
		zap.Int("length", length),
		zap.Duration("took", time.Since(start)))

	if w.config.ExtractLinks {
		w.queueOutlinks(ctx, logger, res)
	}
}

// enqueueIndex pushes the doc id to the indexing queue with bounded retry.
func (w *Worker) enqueueIndex(ctx context.Context, docID int64) error {
	var lastErr error
	for attempt := 1; attempt <= w.config.EnqueueAttempts; attempt++ {
		lastErr = w.queue.PushDocID(ctx, docID)
		if lastErr == nil {
			return nil
		}
		if attempt < w.config.EnqueueAttempts {
			sleepCtx(ctx, enqueueRetryDelay)
		}
	}
	return lastErr
}

func (w *Worker) queueOutlinks(ctx context.Context, logger *zap.Logger, res *fetch.Result) {
	if !htmlContent(res.ContentType) {
		return
	}

	base, err := url.Parse(res.FinalURL)
	if err != nil {
		return
	}

	found := links.Extract(base, res.Body, w.config.MaxLinksPerPage)
	if w.config.Scope != nil {
		found = w.inScope(found)
	}
	if len(found) == 0 {
		return
	}

	if err := w.queue.PushURLs(ctx, found); err != nil {
		logger.Warn("queue outlinks", zap.Int("count", len(found)), zap.Error(err))
		return
	}
	w.linksQueued.Add(int64(len(found)))
	logger.Debug("queued outlinks", zap.String("url", res.FinalURL), zap.Int("count", len(found)))
}

// inScope filters outlinks to hosts the scope allows. Filtering before
// the push keeps out-of-scope URLs from ever inflating the queue.
func (w *Worker) inScope(found []string) []string {
	kept := found[:0]
	for _, link := range found {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if !w.config.Scope.Allows(u.Hostname()) {
			w.outOfScope.Add(1)
			continue
		}
		kept = append(kept, link)
	}
	return kept
}

func (w *Worker) markFailed(ctx context.Context, logger *zap.Logger, docID int64) {
	if err := w.store.MarkFailed(ctx, docID); err != nil {
		logger.Error("mark failed", zap.Int64("doc_id", docID), zap.Error(err))
	}
}

// validateURL accepts http(s) URLs of at least MinURLLength and returns
// the hostname for politeness gating.
func validateURL(raw string) (host string, ok bool) {
	if len(raw) < MinURLLength {
		return "", false
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return u.Hostname(), true
}

// htmlContent reports whether a Content-Type is worth link extraction.
// Servers that send no Content-Type are given the benefit of the doubt.
func htmlContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml+xml")
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
