package metastore

import (
	"context"
	"fmt"
)

// Summary carries what the ranking service needs to render one result:
// display fields plus the archive locator used for snippet extraction.
// Locator fields are nil for rows never marked crawled.
type Summary struct {
	URL    string
	Title  string
	File   *string
	Offset *int64
	Length *int
}

// DocLengths returns doc_length for every id that has one. Ids without a
// row or not yet indexed are simply absent; callers substitute avgdl.
func (s *Store) DocLengths(ctx context.Context, ids []int64) (map[int64]int, error) {
	if len(ids) == 0 {
		return map[int64]int{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, doc_length FROM documents WHERE id = ANY($1) AND doc_length IS NOT NULL`,
		ids)
	if err != nil {
		return nil, fmt.Errorf("doc lengths: %w", err)
	}
	defer rows.Close()

	lengths := make(map[int64]int, len(ids))
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("doc lengths: %w", err)
		}
		lengths[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("doc lengths: %w", err)
	}
	return lengths, nil
}

// Summaries returns url, title, and archive locator for each id in one
// batched query. Missing ids are absent from the result.
func (s *Store) Summaries(ctx context.Context, ids []int64) (map[int64]Summary, error) {
	if len(ids) == 0 {
		return map[int64]Summary{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, url, COALESCE(title, ''), file_path, "offset", length
		 FROM documents WHERE id = ANY($1)`,
		ids)
	if err != nil {
		return nil, fmt.Errorf("summaries: %w", err)
	}
	defer rows.Close()

	summaries := make(map[int64]Summary, len(ids))
	for rows.Next() {
		var id int64
		var sum Summary
		if err := rows.Scan(&id, &sum.URL, &sum.Title, &sum.File, &sum.Offset, &sum.Length); err != nil {
			return nil, fmt.Errorf("summaries: %w", err)
		}
		summaries[id] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summaries: %w", err)
	}
	return summaries, nil
}

// CorpusStats returns the total document count and the mean doc_length
// over indexed documents. An empty corpus reports avgdl 0; the ranker
// substitutes its default.
func (s *Store) CorpusStats(ctx context.Context) (total int64, avgdl float64, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(doc_length), 0) FROM documents`).Scan(&total, &avgdl)
	if err != nil {
		return 0, 0, fmt.Errorf("corpus stats: %w", err)
	}
	return total, avgdl, nil
}
