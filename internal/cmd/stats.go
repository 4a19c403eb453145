package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loupelabs/loupe/pkg/index"
	"github.com/loupelabs/loupe/pkg/metastore"
	"github.com/loupelabs/loupe/pkg/queue"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pipeline statistics",
	Long: `Show a snapshot of the whole pipeline.

Reports document counts by status, queue depths, corpus statistics, and
the distinct term count of the inverted index. The index is opened
read-only; when it does not exist yet the index section reports that
instead of failing.

Examples:
  loupe stats
  loupe stats --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var statsJSON bool

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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

	var terms termCounter
	idx, err := index.Open(index.Options{Path: cfg.Index.Path, ReadOnly: true, Logger: logger})
	if err == nil {
		defer func() {
			if err := idx.Close(); err != nil {
				logger.Warn("close index", zap.Error(err))
			}
		}()
		terms = idx
	} else {
		logger.Debug("index unavailable for stats", zap.String("path", cfg.Index.Path), zap.Error(err))
	}

	stats, err := collectStats(ctx, store, q, terms)
	if err != nil {
		return err
	}

	if statsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	return renderStats(cmd.OutOrStdout(), stats)
}

// statsStore is the metastore slice the stats command reads.
type statsStore interface {
	StatusCounts(ctx context.Context) (map[string]int64, error)
	CorpusStats(ctx context.Context) (total int64, avgdl float64, err error)
}

// statsQueue reports queue depths.
type statsQueue interface {
	CrawlQueueLen(ctx context.Context) (int64, error)
	IndexingQueueLen(ctx context.Context) (int64, error)
}

// pipelineStats is one snapshot across every backend.
type pipelineStats struct {
	Documents      map[string]int64 `json:"documents"`
	TotalDocuments int64            `json:"total_documents"`
	CrawledDocs    int64            `json:"crawled_documents"`
	AvgDocLength   float64          `json:"avg_doc_length"`
	CrawlQueue     int64            `json:"crawl_queue"`
	IndexingQueue  int64            `json:"indexing_queue"`
	IndexTerms     int              `json:"index_terms"`
	IndexAvailable bool             `json:"index_available"`
}

// collectStats gathers counters from the stores. terms may be nil when
// the index does not exist yet.
func collectStats(ctx context.Context, store statsStore, q statsQueue, terms termCounter) (pipelineStats, error) {
	var s pipelineStats

	counts, err := store.StatusCounts(ctx)
	if err != nil {
		return s, err
	}
	s.Documents = counts
	for _, n := range counts {
		s.TotalDocuments += n
	}

	if s.CrawledDocs, s.AvgDocLength, err = store.CorpusStats(ctx); err != nil {
		return s, err
	}
	if s.CrawlQueue, err = q.CrawlQueueLen(ctx); err != nil {
		return s, err
	}
	if s.IndexingQueue, err = q.IndexingQueueLen(ctx); err != nil {
		return s, err
	}

	if terms != nil {
		if s.IndexTerms, err = terms.TermCount(); err != nil {
			return s, err
		}
		s.IndexAvailable = true
	}
	return s, nil
}

// renderStats writes the human-readable table.
func renderStats(out io.Writer, s pipelineStats) error {
	fmt.Fprintln(out, "Documents:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	statuses := make([]string, 0, len(s.Documents))
	for status := range s.Documents {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(w, "  %s\t%d\n", status, s.Documents[status])
	}
	fmt.Fprintf(w, "  total\t%d\n", s.TotalDocuments)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Queues:")
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  crawl\t%d\n", s.CrawlQueue)
	fmt.Fprintf(w, "  indexing\t%d\n", s.IndexingQueue)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Corpus:")
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  indexed documents\t%d\n", s.CrawledDocs)
	fmt.Fprintf(w, "  avg doc length\t%.1f\n", s.AvgDocLength)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Index:")
	if !s.IndexAvailable {
		fmt.Fprintln(out, "  not created yet")
		return nil
	}
	fmt.Fprintf(out, "  distinct terms  %d\n", s.IndexTerms)
	return nil
}
