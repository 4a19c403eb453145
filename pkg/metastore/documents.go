package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Document mirrors one row of the documents table. Nullable columns are
// pointers; they stay nil until the pipeline fills them in.
type Document struct {
	ID          int64
	URL         string
	Status      string
	CrawledAt   time.Time
	FilePath    *string
	Offset      *int64
	Length      *int
	ContentHash *string
	Title       *string
	DocLength   *int
}

// Locator addresses one compressed WARC record inside an archive file.
type Locator struct {
	File   string
	Offset int64
	Length int
}

// Reserve inserts (url, status='processing') and returns the assigned doc
// id. A URL that already has a row returns ErrDuplicateURL without any
// mutation; the unique constraint on url makes this race-free across
// concurrent workers.
func (s *Store) Reserve(ctx context.Context, url string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (url, status) VALUES ($1, $2)
		 ON CONFLICT (url) DO NOTHING
		 RETURNING id`,
		url, StatusProcessing).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("reserve %s: %w", url, ErrDuplicateURL)
	}
	if err != nil {
		return 0, fmt.Errorf("reserve %s: %w", url, err)
	}
	return id, nil
}

// MarkCrawled transitions processing → crawled and records the archive
// locator plus the body hash.
func (s *Store) MarkCrawled(ctx context.Context, id int64, file string, offset int64, length int, contentHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents
		 SET status = $2, crawled_at = now(), file_path = $3, "offset" = $4, length = $5, content_hash = $6
		 WHERE id = $1 AND status = $7`,
		id, StatusCrawled, file, offset, length, contentHash, StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark crawled %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark crawled %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkFailed transitions processing → error after a failed fetch or
// archive write.
func (s *Store) MarkFailed(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $2 WHERE id = $1 AND status = $3`,
		id, StatusError, StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark failed %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark failed %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkNotQueued transitions crawled → crawled_not_queued when the index
// enqueue exhausted its retries. Allowed only from crawled.
func (s *Store) MarkNotQueued(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $2 WHERE id = $1 AND status = $3`,
		id, StatusCrawledNotQueued, StatusCrawled)
	if err != nil {
		return fmt.Errorf("mark not queued %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark not queued %d: %w", id, ErrNotFound)
	}
	return nil
}

// Locator returns the archive locator for a crawled document.
func (s *Store) Locator(ctx context.Context, id int64) (Locator, error) {
	var file *string
	var offset *int64
	var length *int

	err := s.pool.QueryRow(ctx,
		`SELECT file_path, "offset", length FROM documents WHERE id = $1`,
		id).Scan(&file, &offset, &length)
	if errors.Is(err, pgx.ErrNoRows) {
		return Locator{}, fmt.Errorf("locator %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Locator{}, fmt.Errorf("locator %d: %w", id, err)
	}
	if file == nil || offset == nil || length == nil {
		return Locator{}, fmt.Errorf("locator %d: %w", id, ErrNoLocator)
	}

	return Locator{File: *file, Offset: *offset, Length: *length}, nil
}

// SetDocLength records the document's token count. The guard keeps the
// first successful indexing authoritative: once set, later calls are
// no-ops, which makes re-indexing idempotent.
func (s *Store) SetDocLength(ctx context.Context, id int64, n int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE documents SET doc_length = $2 WHERE id = $1 AND doc_length IS NULL`,
		id, n)
	if err != nil {
		return fmt.Errorf("set doc length %d: %w", id, err)
	}
	return nil
}

// SetTitle records the extracted <title>. Empty titles are skipped and the
// first write wins, matching SetDocLength semantics.
func (s *Store) SetTitle(ctx context.Context, id int64, title string) error {
	if title == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE documents SET title = $2 WHERE id = $1 AND title IS NULL`,
		id, title)
	if err != nil {
		return fmt.Errorf("set title %d: %w", id, err)
	}
	return nil
}

// Get returns one document row.
func (s *Store) Get(ctx context.Context, id int64) (*Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, status, crawled_at, file_path, "offset", length, content_hash, title, doc_length
		 FROM documents WHERE id = $1`,
		id).Scan(&d.ID, &d.URL, &d.Status, &d.CrawledAt, &d.FilePath, &d.Offset, &d.Length, &d.ContentHash, &d.Title, &d.DocLength)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return &d, nil
}
