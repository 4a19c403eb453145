// Package index maintains the inverted index: a persistent mapping from
// term to posting list held in an embedded key-value store.
//
// Keys are raw UTF-8 term strings. Values are a binary posting encoding:
// a uvarint posting count followed by one (doc id delta, term frequency)
// uvarint pair per posting, doc ids strictly ascending. Delta coding keeps
// hot lists small; ascending order makes merges deterministic, so indexing
// the same document twice is a byte-level no-op.
package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// Posting records one document containing a term and how often the term
// occurs in it.
type Posting struct {
	DocID int64
	TF    int
}

// ErrCorruptPostings indicates a stored posting list failed to decode.
var ErrCorruptPostings = errors.New("corrupt posting list")

// EncodePostings serializes postings, which must be sorted by ascending
// DocID with no duplicates.
func EncodePostings(postings []Posting) []byte {
	buf := make([]byte, 0, 1+len(postings)*4)
	buf = binary.AppendUvarint(buf, uint64(len(postings)))

	var prev int64
	for _, p := range postings {
		buf = binary.AppendUvarint(buf, uint64(p.DocID-prev))
		buf = binary.AppendUvarint(buf, uint64(p.TF))
		prev = p.DocID
	}
	return buf
}

// DecodePostings parses a posting list produced by EncodePostings.
func DecodePostings(data []byte) ([]Posting, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad count", ErrCorruptPostings)
	}
	data = data[n:]

	postings := make([]Posting, 0, count)
	var prev int64
	for i := uint64(0); i < count; i++ {
		delta, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, fmt.Errorf("%w: truncated doc id at posting %d", ErrCorruptPostings, i)
		}
		data = data[n:]

		tf, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, fmt.Errorf("%w: truncated tf at posting %d", ErrCorruptPostings, i)
		}
		data = data[n:]

		prev += int64(delta)
		postings = append(postings, Posting{DocID: prev, TF: int(tf)})
	}

	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptPostings, len(data))
	}
	return postings, nil
}

// upsertPosting inserts p into postings (sorted by DocID) or replaces the
// existing entry for p.DocID. The second return reports whether the list
// changed; re-adding an identical posting is a no-op.
func upsertPosting(postings []Posting, p Posting) ([]Posting, bool) {
	i := sort.Search(len(postings), func(j int) bool {
		return postings[j].DocID >= p.DocID
	})

	if i < len(postings) && postings[i].DocID == p.DocID {
		if postings[i].TF == p.TF {
			return postings, false
		}
		out := make([]Posting, len(postings))
		copy(out, postings)
		out[i].TF = p.TF
		return out, true
	}

	out := make([]Posting, 0, len(postings)+1)
	out = append(out, postings[:i]...)
	out = append(out, p)
	out = append(out, postings[i:]...)
	return out, true
}
