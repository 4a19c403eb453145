// Package indexer consumes doc ids from the indexing queue, re-reads the
// archived page, and folds its terms into the inverted index.
//
// Indexing is idempotent: merging the same document twice writes the same
// postings, and doc_length and title keep their first value. At-least-once
// delivery from the queue is therefore safe, including replays after a
// worker dies mid-document.
package indexer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/loupelabs/loupe/pkg/htmltext"
	"github.com/loupelabs/loupe/pkg/metastore"
	"github.com/loupelabs/loupe/pkg/tokenize"
	"github.com/loupelabs/loupe/pkg/warc"
)

// popRetryDelay pauses a worker after a queue error so a sick Redis does
// not spin the loop.
const popRetryDelay = time.Second

// Queue is the slice of the job queue the indexer uses.
type Queue interface {
	// PopDocID blocks until a doc id arrives or the context ends.
	PopDocID(ctx context.Context) (int64, error)
}

// Store is the slice of the metadata store the indexer uses.
type Store interface {
	Locator(ctx context.Context, id int64) (metastore.Locator, error)
	SetDocLength(ctx context.Context, id int64, n int) error
	SetTitle(ctx context.Context, id int64, title string) error
}

// Archive reads single records back out of the WARC archive.
type Archive interface {
	ReadRecord(file string, offset int64, length int) ([]byte, error)
}

// Index merges per-document term frequencies into the inverted index.
type Index interface {
	Merge(ctx context.Context, docID int64, termFreqs map[string]int) error
}

// Config configures indexer behavior.
type Config struct {
	// Workers is the number of concurrent indexing workers. The index
	// store serializes conflicting term updates, so more than one worker
	// is safe.
	// Default: 1
	Workers int
}

// DefaultConfig returns the default indexer configuration.
func DefaultConfig() Config {
	return Config{Workers: 1}
}

// Stats are aggregate counters across all workers.
type Stats struct {
	// Indexed is the number of documents fully merged into the index.
	Indexed int64

	// Skipped counts doc ids with no usable row or locator.
	Skipped int64

	// Failed counts archive, parse, or index errors.
	Failed int64
}

// Worker runs the indexing loop.
type Worker struct {
	queue   Queue
	store   Store
	archive Archive
	index   Index
	logger  *zap.Logger
	config  Config

	indexed atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// New creates an indexing worker pool. Zero-valued config fields fall back
// to defaults.
func New(q Queue, s Store, a Archive, idx Index, logger *zap.Logger, cfg Config) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	return &Worker{
		queue:   q,
		store:   s,
		archive: a,
		index:   idx,
		logger:  logger,
		config:  cfg,
	}
}

// Run blocks until the context is cancelled, then returns the context's
// error once every worker has finished its in-flight document.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("indexer starting", zap.Int("workers", w.config.Workers))

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
	w.logger.Info("indexer stopped",
		zap.Int64("indexed", stats.Indexed),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("failed", stats.Failed))

	return ctx.Err()
}

// Stats returns a snapshot of the aggregate counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Indexed: w.indexed.Load(),
		Skipped: w.skipped.Load(),
		Failed:  w.failed.Load(),
	}
}

func (w *Worker) loop(ctx context.Context, logger *zap.Logger) {
	for ctx.Err() == nil {
		w.step(ctx, logger)
	}
}

// step pops one doc id and indexes it. A malformed queue payload was
// already consumed by the pop, so logging and moving on is the skip.
func (w *Worker) step(ctx context.Context, logger *zap.Logger) {
	docID, err := w.queue.PopDocID(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("pop doc id", zap.Error(err))
		sleepCtx(ctx, popRetryDelay)
		return
	}

	w.process(ctx, logger, docID)
}

func (w *Worker) process(ctx context.Context, logger *zap.Logger, docID int64) {
	start := time.Now()

	loc, err := w.store.Locator(ctx, docID)
	if err != nil {
		w.skipped.Add(1)
		logger.Warn("no archive locator", zap.Int64("doc_id", docID), zap.Error(err))
		return
	}

	raw, err := w.archive.ReadRecord(loc.File, loc.Offset, loc.Length)
	if err != nil {
		w.failed.Add(1)
		logger.Error("read archive record",
			zap.Int64("doc_id", docID),
			zap.String("file", loc.File),
			zap.Int64("offset", loc.Offset),
			zap.Error(err))
		return
	}

	rec, err := warc.Parse(raw)
	if err != nil {
		w.failed.Add(1)
		logger.Error("parse archive record", zap.Int64("doc_id", docID), zap.Error(err))
		return
	}

	text, title := htmltext.Extract(rec.Payload)
	tokens := tokenize.Tokens(text)

	if err := w.index.Merge(ctx, docID, tokenize.TermFrequencies(tokens)); err != nil {
		w.failed.Add(1)
		logger.Error("merge postings", zap.Int64("doc_id", docID), zap.Error(err))
		return
	}

	// Document length counts every token occurrence, not distinct terms;
	// ranking normalizes by it.
	if err := w.store.SetDocLength(ctx, docID, len(tokens)); err != nil {
		w.failed.Add(1)
		logger.Error("set doc length", zap.Int64("doc_id", docID), zap.Error(err))
		return
	}

	if err := w.store.SetTitle(ctx, docID, title); err != nil {
		logger.Warn("set title", zap.Int64("doc_id", docID), zap.Error(err))
	}

	w.indexed.Add(1)
	logger.Info("indexed",
		zap.Int64("doc_id", docID),
		zap.String("url", rec.TargetURI),
		zap.Int("tokens", len(tokens)),
		zap.Duration("took", time.Since(start)))
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
