// Package archive appends and reads WARC archive files.
//
// An archive file is a sequence of concatenated gzip members, each holding
// exactly one WARC record. There is no index inside the file; the metadata
// store keeps the (file, offset, length) locator for every record, which
// makes extraction O(1): read length bytes at offset, decompress.
package archive

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/loupelabs/loupe/pkg/warc"
)

// Writer appends gzip-compressed WARC response records to a single file.
//
// Writer is safe for concurrent use. Appends are serialized by a mutex so
// the (offset, length) pair returned for a record is exactly what a reader
// will find at that offset. One process owns one file; cross-process
// sharing of an archive file is not supported.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string

	// closed indicates the writer has been closed.
	closed bool

	now   func() time.Time
	newID func() uuid.UUID
}

// OpenWriter opens (creating if necessary) the archive file at path for
// appending. Parent directories are created.
func OpenWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &WriteError{Op: "mkdir", Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &WriteError{Op: "open", Path: path, Err: err}
	}

	return &Writer{
		f:     f,
		path:  path,
		now:   time.Now,
		newID: uuid.New,
	}, nil
}

// Basename returns the archive file's basename, the form stored in
// document locators.
func (w *Writer) Basename() string {
	return filepath.Base(w.path)
}

// WriteRecord appends one WARC response record for targetURI wrapping
// payload, compressed as a single gzip member, and returns the byte offset
// of the member's first byte and the member's compressed length.
//
// On any error the record must be treated as not written: the returned
// offset and length are not valid and the document must not be marked
// crawled.
func (w *Writer) WriteRecord(ctx context.Context, targetURI string, payload []byte) (offset int64, length int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	// Build and compress outside the lock; only file access is serialized.
	record := warc.Encode(targetURI, w.now(), w.newID(), payload)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(record); err != nil {
		return 0, 0, &WriteError{Op: "compress", Path: w.path, Err: err}
	}
	if err := gz.Close(); err != nil {
		return 0, 0, &WriteError{Op: "compress", Path: w.path, Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, 0, ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	offset, err = w.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, 0, &WriteError{Op: "seek", Path: w.path, Err: err}
	}

	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return 0, 0, &WriteError{Op: "write", Path: w.path, Err: err}
	}

	return offset, buf.Len(), nil
}

// Close closes the underlying file. Further writes return ErrWriterClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}
