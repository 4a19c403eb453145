package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// DefaultMaxRecordSize caps the decompressed size of a single record.
// Slices that inflate beyond the cap are rejected to bound indexer memory.
const DefaultMaxRecordSize = 100 << 20 // 100 MiB

// Reader extracts single records from archive files under a root
// directory. It is stateless and safe for concurrent use.
type Reader struct {
	root    string
	maxSize int64
}

// NewReader returns a Reader resolving basenames against root. maxSize
// bounds the decompressed record size; values <= 0 use
// DefaultMaxRecordSize.
func NewReader(root string, maxSize int64) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxRecordSize
	}
	return &Reader{root: root, maxSize: maxSize}
}

// ReadRecord reads exactly length bytes at offset from the named archive
// file and returns the decompressed WARC record bytes.
//
// The slice must be one complete gzip member; anything shorter, longer,
// or corrupt fails. A record that decompresses beyond the configured cap
// returns ErrTooLarge.
func (r *Reader) ReadRecord(file string, offset int64, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: non-positive length %d", ErrShortRead, length)
	}

	path := filepath.Join(r.root, filepath.Base(file))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer f.Close()

	compressed := make([]byte, length)
	if _, err := f.ReadAt(compressed, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: %s at %d+%d", ErrShortRead, file, offset, length)
		}
		return nil, fmt.Errorf("read archive %s at %d: %w", file, offset, err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompress %s at %d: %w", file, offset, err)
	}
	defer gz.Close()

	// The slice is a single member; never continue into trailing data.
	gz.Multistream(false)

	record, err := io.ReadAll(io.LimitReader(gz, r.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompress %s at %d: %w", file, offset, err)
	}
	if int64(len(record)) > r.maxSize {
		return nil, fmt.Errorf("%w: %s at %d inflates past %d bytes", ErrTooLarge, file, offset, r.maxSize)
	}

	return record, nil
}
