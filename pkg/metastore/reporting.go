package metastore

import (
	"context"
	"fmt"
)

// List returns document rows ordered by id. A non-empty status restricts
// the result to that lifecycle state; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, status string, limit int) ([]Document, error) {
	q := `SELECT id, url, status, crawled_at, file_path, "offset", length, content_hash, title, doc_length
	      FROM documents`
	args := []any{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += ` ORDER BY id`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.URL, &d.Status, &d.CrawledAt, &d.FilePath, &d.Offset, &d.Length, &d.ContentHash, &d.Title, &d.DocLength); err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// StatusCounts returns the number of documents in each lifecycle state.
// States with no documents are absent from the map.
func (s *Store) StatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("status counts: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	return counts, nil
}
