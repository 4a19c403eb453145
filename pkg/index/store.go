package index

import (
	"context"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// maxMergeAttempts bounds retries when concurrent merges of the same term
// collide at commit.
const maxMergeAttempts = 10

// ErrMergeContention is returned when a posting merge keeps losing commit
// conflicts; callers treat the document as failed and move on.
var ErrMergeContention = errors.New("posting merge contention")

// Options configures opening the index store.
type Options struct {
	// Path is the index directory.
	Path string

	// ReadOnly opens the store for queries only. A read-only open bypasses
	// the directory lock so the ranking service can read alongside a live
	// indexer; it sees the state as of open time.
	ReadOnly bool

	// Logger receives store-internal log output. Nil silences it.
	Logger *zap.Logger
}

// Store is the inverted index. All methods are safe for concurrent use.
// Merges on the same term are serialized by transaction conflict detection
// and retried, so concurrent indexer workers cannot lose postings.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the index at opts.Path.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	bopts = bopts.WithLogger(newBadgerLogger(opts.Logger))
	if opts.ReadOnly {
		bopts = bopts.WithReadOnly(true).WithBypassLockGuard(true)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open index at %s: %w", opts.Path, err)
	}
	return &Store{db: db}, nil
}

// Merge records that docID contains each term with the given occurrence
// count. Terms are applied in sorted order, one transaction per term;
// a failure part-way leaves earlier terms applied, which re-indexing the
// same document repairs (merges are idempotent).
func (s *Store) Merge(ctx context.Context, docID int64, termFreqs map[string]int) error {
	terms := make([]string, 0, len(termFreqs))
	for term := range termFreqs {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.mergeTerm(term, Posting{DocID: docID, TF: termFreqs[term]}); err != nil {
			return fmt.Errorf("merge term %q for doc %d: %w", term, docID, err)
		}
	}
	return nil
}

func (s *Store) mergeTerm(term string, p Posting) error {
	key := []byte(term)

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			var current []Posting

			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				// First sighting of the term.
			case err != nil:
				return err
			default:
				if err := item.Value(func(val []byte) error {
					current, err = DecodePostings(val)
					return err
				}); err != nil {
					return err
				}
			}

			merged, changed := upsertPosting(current, p)
			if !changed {
				return nil
			}
			return txn.Set(key, EncodePostings(merged))
		})

		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return ErrMergeContention
}

// Postings returns the posting list for term, or an empty list when the
// term has never been indexed.
func (s *Store) Postings(term string) ([]Posting, error) {
	var postings []Posting

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(term))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			postings, err = DecodePostings(val)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("postings for %q: %w", term, err)
	}
	return postings, nil
}

// TermCount reports the number of distinct terms in the index. Used by
// diagnostics only; it scans keys.
func (s *Store) TermCount() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close releases the store.
func (s *Store) Close() error {
	return s.db.Close()
}
