package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loupelabs/loupe/pkg/export"
	"github.com/loupelabs/loupe/pkg/metastore"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export document metadata as JSONL",
	Long: `Export document metadata as JSONL record envelopes.

One loupe.document.v1 line per row, in id order, followed by one
loupe.summary.v1 line. Writes to stdout unless --output is given.

Examples:
  loupe export > documents.jsonl
  loupe export --status error
  loupe export --status crawled --limit 100 -o crawled.jsonl`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var (
	exportStatus string
	exportLimit  int
	exportOutput string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Only rows with this status")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Export at most this many rows (0 = all)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if exportStatus != "" && !knownStatus(exportStatus) {
		return fmt.Errorf("unknown status %q", exportStatus)
	}

	store, err := metastore.Connect(ctx, pgConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	docs, err := store.List(ctx, exportStatus, exportLimit)
	if err != nil {
		return err
	}

	w := export.NewWriter(out)
	byStatus := make(map[string]int64)
	for i := range docs {
		if err := w.WriteDocument(exportDocument(docs[i])); err != nil {
			return err
		}
		byStatus[docs[i].Status]++
	}
	if err := w.WriteSummary(&export.Summary{Documents: w.Count(), ByStatus: byStatus}); err != nil {
		return err
	}
	return w.Close()
}

// exportDocument flattens a store row into the export payload.
func exportDocument(d metastore.Document) *export.Document {
	doc := &export.Document{
		ID:        d.ID,
		URL:       d.URL,
		Status:    d.Status,
		Offset:    d.Offset,
		Length:    d.Length,
		DocLength: d.DocLength,
	}
	if !d.CrawledAt.IsZero() {
		doc.CrawledAt = d.CrawledAt.UTC().Format(time.RFC3339)
	}
	if d.Title != nil {
		doc.Title = *d.Title
	}
	if d.FilePath != nil {
		doc.FilePath = *d.FilePath
	}
	if d.ContentHash != nil {
		doc.ContentHash = *d.ContentHash
	}
	return doc
}

// knownStatus reports whether s names a document lifecycle status.
func knownStatus(s string) bool {
	switch s {
	case metastore.StatusPending, metastore.StatusProcessing, metastore.StatusCrawled,
		metastore.StatusCrawledNotQueued, metastore.StatusError:
		return true
	}
	return false
}
