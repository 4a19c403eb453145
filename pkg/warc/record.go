// Package warc builds and parses WARC response records.
//
// A record is a plain-text header block terminated by an empty line
// (CRLF CRLF), followed by the captured HTTP payload and a trailing
// CRLF CRLF. Records are stored one per gzip member in archive files;
// see the archive package for framing.
package warc

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Header field names emitted and recognized by this package.
const (
	FieldType          = "WARC-Type"
	FieldTargetURI     = "WARC-Target-URI"
	FieldDate          = "WARC-Date"
	FieldRecordID      = "WARC-Record-ID"
	FieldContentType   = "Content-Type"
	FieldContentLength = "Content-Length"
)

const (
	// Version is the WARC version line written at the top of every record.
	Version = "WARC/1.0"

	// TypeResponse is the only record type the crawler produces.
	TypeResponse = "response"

	// PayloadContentType describes the stored payload: a captured HTTP
	// response body.
	PayloadContentType = "application/http; msgtype=response"

	// DateLayout is the ISO-8601 UTC layout used for WARC-Date.
	DateLayout = "2006-01-02T15:04:05Z"
)

var (
	// ErrNoHeaderBoundary indicates the CRLFCRLF separating headers from
	// the payload was not found.
	ErrNoHeaderBoundary = errors.New("warc: header boundary not found")

	// ErrMalformedHeader indicates the header block could not be parsed.
	ErrMalformedHeader = errors.New("warc: malformed header")
)

var (
	crlf     = []byte("\r\n")
	boundary = []byte("\r\n\r\n")
)

// Record is one parsed WARC record.
type Record struct {
	Version       string
	Type          string
	TargetURI     string
	Date          time.Time
	RecordID      string
	ContentType   string
	ContentLength int

	// Payload is the captured HTTP body, without the trailing CRLFCRLF.
	Payload []byte
}

// Encode serializes a response record for the given target URI and payload.
//
// The returned bytes are header block, blank line, payload, trailing
// CRLFCRLF. The caller supplies the capture time and record id so that
// encoding stays deterministic under test; production callers pass
// time.Now() and a fresh UUID.
func Encode(targetURI string, capturedAt time.Time, id uuid.UUID, payload []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(payload) + 256)

	b.WriteString(Version)
	b.Write(crlf)
	writeField(&b, FieldType, TypeResponse)
	writeField(&b, FieldTargetURI, targetURI)
	writeField(&b, FieldDate, capturedAt.UTC().Format(DateLayout))
	writeField(&b, FieldRecordID, id.URN())
	writeField(&b, FieldContentType, PayloadContentType)
	writeField(&b, FieldContentLength, strconv.Itoa(len(payload)))
	b.Write(crlf)
	b.Write(payload)
	b.Write(boundary)

	return b.Bytes()
}

func writeField(b *bytes.Buffer, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.Write(crlf)
}

// Parse decodes one record produced by Encode (or any compatible writer).
//
// The payload is sized by Content-Length when the header carries a valid
// value; otherwise everything after the header boundary is taken with the
// trailing CRLFCRLF trimmed.
func Parse(data []byte) (*Record, error) {
	idx := bytes.Index(data, boundary)
	if idx < 0 {
		return nil, ErrNoHeaderBoundary
	}

	rec := &Record{ContentLength: -1}
	if err := parseHeader(data[:idx], rec); err != nil {
		return nil, err
	}

	body := data[idx+len(boundary):]
	if rec.ContentLength >= 0 && rec.ContentLength <= len(body) {
		rec.Payload = body[:rec.ContentLength]
	} else {
		rec.Payload = bytes.TrimSuffix(body, boundary)
	}

	return rec, nil
}

func parseHeader(block []byte, rec *Record) error {
	lines := bytes.Split(block, crlf)
	if len(lines) == 0 {
		return ErrMalformedHeader
	}

	rec.Version = string(lines[0])
	if !strings.HasPrefix(rec.Version, "WARC/") {
		return fmt.Errorf("%w: unexpected version line %q", ErrMalformedHeader, rec.Version)
	}

	for _, line := range lines[1:] {
		if len(line) == 0 {
			continue
		}
		name, value, ok := strings.Cut(string(line), ":")
		if !ok {
			return fmt.Errorf("%w: field %q", ErrMalformedHeader, string(line))
		}
		value = strings.TrimSpace(value)

		switch name {
		case FieldType:
			rec.Type = value
		case FieldTargetURI:
			rec.TargetURI = value
		case FieldDate:
			if t, err := time.Parse(DateLayout, value); err == nil {
				rec.Date = t
			}
		case FieldRecordID:
			rec.RecordID = value
		case FieldContentType:
			rec.ContentType = value
		case FieldContentLength:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: content length %q", ErrMalformedHeader, value)
			}
			rec.ContentLength = n
		}
	}

	return nil
}
