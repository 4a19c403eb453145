package metastore

import (
	"context"
	"fmt"
)

// Migrate creates the documents schema in-place. It is idempotent and safe
// to run from every worker at startup.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id SERIAL PRIMARY KEY,
			url TEXT UNIQUE NOT NULL,
			status VARCHAR(20) DEFAULT 'pending',
			crawled_at TIMESTAMP DEFAULT now(),
			file_path TEXT,
			"offset" BIGINT,
			length INT,
			content_hash VARCHAR(64),
			title TEXT,
			doc_length INT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_url ON documents(url);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate documents: %w", err)
		}
	}

	return tx.Commit(ctx)
}
