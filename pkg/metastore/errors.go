package metastore

import "errors"

// Sentinel errors for document operations.
var (
	// ErrDuplicateURL indicates Reserve hit the unique constraint: the URL
	// already has a document row.
	ErrDuplicateURL = errors.New("url already reserved")

	// ErrNotFound indicates no document matched, or a guarded status
	// transition matched zero rows.
	ErrNotFound = errors.New("document not found")

	// ErrNoLocator indicates the document row exists but has no archive
	// locator yet (never marked crawled).
	ErrNoLocator = errors.New("document has no archive locator")
)

// IsDuplicateURL returns true if the error indicates the URL was already
// reserved by an earlier crawl.
func IsDuplicateURL(err error) bool {
	return errors.Is(err, ErrDuplicateURL)
}

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
