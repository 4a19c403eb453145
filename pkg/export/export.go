// Package export streams document metadata as JSONL.
//
// Each output line is a typed record envelope with the payload under
// data, so downstream tooling can filter on type without knowing every
// payload schema. A document record per row, then one trailing summary.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Record type constants, following the pattern loupe.<type>.v<version>.
const (
	// TypeDocument identifies document metadata records.
	TypeDocument = "loupe.document.v1"

	// TypeSummary identifies the trailing summary record.
	TypeSummary = "loupe.summary.v1"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("export: writer is closed")

// Record is the envelope for every JSONL line.
type Record struct {
	// Type identifies the record type (e.g. "loupe.document.v1").
	Type string `json:"type"`

	// TS is when the record was written, in UTC.
	TS time.Time `json:"ts"`

	// Data is the type-specific payload.
	Data json.RawMessage `json:"data"`
}

// Document is the data payload for one document row. Fields the
// pipeline has not filled in yet are omitted.
type Document struct {
	ID          int64  `json:"id"`
	URL         string `json:"url"`
	Status      string `json:"status"`
	CrawledAt   string `json:"crawled_at,omitempty"`
	Title       string `json:"title,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	Offset      *int64 `json:"offset,omitempty"`
	Length      *int   `json:"length,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	DocLength   *int   `json:"doc_length,omitempty"`
}

// Summary is the data payload for the final line of an export.
type Summary struct {
	Documents int64            `json:"documents"`
	ByStatus  map[string]int64 `json:"by_status,omitempty"`
}

// Writer emits JSONL records to an io.Writer. Safe for concurrent use;
// writes are serialized so lines never interleave.
type Writer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closed bool
	count  int64
	now    func() time.Time
}

// NewWriter wraps w. The caller owns w and closes it after Close.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w), now: time.Now}
}

// WriteDocument emits one document record.
func (w *Writer) WriteDocument(doc *Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writeLocked(TypeDocument, doc); err != nil {
		return err
	}
	w.count++
	return nil
}

// WriteSummary emits the summary record.
func (w *Writer) WriteSummary(sum *Summary) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(TypeSummary, sum)
}

func (w *Writer) writeLocked(typ string, payload any) error {
	if w.closed {
		return ErrClosed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", typ, err)
	}
	return w.enc.Encode(Record{Type: typ, TS: w.now().UTC(), Data: data})
}

// Count returns the number of document records written so far.
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close marks the writer closed; further writes return ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}
