package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Member is one record's position inside an archive file, as found by a
// sequential scan.
type Member struct {
	// Offset is the byte offset of the gzip member's first byte.
	Offset int64

	// Length is the member's compressed length in bytes.
	Length int

	// Record holds the decompressed WARC record bytes.
	Record []byte
}

// Scanner walks an archive file start to finish, yielding every gzip
// member with the exact (offset, length) a locator for it would carry.
// It exists for integrity checks: the offsets it reports must agree with
// what the metadata store recorded at write time.
//
// A Scanner is single-use and not safe for concurrent use. After Next
// returns a non-nil error other than io.EOF the scan is positioned
// mid-member and must not continue.
type Scanner struct {
	f       *os.File
	src     *countingReader
	gz      *gzip.Reader
	maxSize int64
	started bool
}

// OpenScanner opens the archive file at path for scanning. maxSize bounds
// the decompressed size of a single record; values <= 0 use
// DefaultMaxRecordSize.
func OpenScanner(path string, maxSize int64) (*Scanner, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxRecordSize
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &Scanner{
		f:       f,
		src:     &countingReader{r: bufio.NewReader(f)},
		maxSize: maxSize,
	}, nil
}

// Next returns the next member. The end of the archive is io.EOF; any
// other error means the file is corrupt or truncated at the reported
// offset.
func (s *Scanner) Next() (*Member, error) {
	start := s.src.n

	if s.started {
		if err := s.gz.Reset(s.src); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("member header at %d: %w", start, err)
		}
	} else {
		gz, err := gzip.NewReader(s.src)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("member header at %d: %w", start, err)
		}
		s.gz = gz
		s.started = true
	}

	// One member per record; never read into the next member's header.
	s.gz.Multistream(false)

	record, err := io.ReadAll(io.LimitReader(s.gz, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("member body at %d: %w", start, err)
	}
	if int64(len(record)) > s.maxSize {
		return nil, fmt.Errorf("%w: member at %d inflates past %d bytes", ErrTooLarge, start, s.maxSize)
	}

	// The source implements io.ByteReader, so the decompressor consumed
	// exactly the member's bytes and the counter sits on the next header.
	return &Member{
		Offset: start,
		Length: int(s.src.n - start),
		Record: record,
	}, nil
}

// Close closes the underlying file.
func (s *Scanner) Close() error {
	return s.f.Close()
}

// countingReader tracks how many bytes the decompressor has consumed.
// Exposing ReadByte keeps flate reading exactly as much as it needs
// instead of buffering ahead, which is what makes the count a valid
// member boundary.
type countingReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}
