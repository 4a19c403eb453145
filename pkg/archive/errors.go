package archive

import (
	"errors"
	"fmt"
)

// Sentinel errors for archive operations.
var (
	// ErrWriterClosed is returned when writing through a closed writer.
	ErrWriterClosed = errors.New("archive writer is closed")

	// ErrShortRead indicates fewer bytes were available at the requested
	// offset than the recorded length.
	ErrShortRead = errors.New("short archive read")

	// ErrTooLarge indicates a record exceeded the decompressed size cap.
	ErrTooLarge = errors.New("decompressed record exceeds size limit")
)

// WriteError wraps a failure while appending a record.
type WriteError struct {
	// Op is the operation that failed (e.g., "seek", "write").
	Op string

	// Path is the archive file path.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("archive write %s: %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsShortRead returns true if the error indicates a truncated slice read.
func IsShortRead(err error) bool {
	return errors.Is(err, ErrShortRead)
}

// IsTooLarge returns true if the error indicates the size cap was exceeded.
func IsTooLarge(err error) bool {
	return errors.Is(err, ErrTooLarge)
}
