package archive_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupelabs/loupe/pkg/archive"
	"github.com/loupelabs/loupe/pkg/warc"
)

func newTestArchive(t *testing.T) (*archive.Writer, *archive.Reader, string) {
	t.Helper()

	dir := t.TempDir()
	w, err := archive.OpenWriter(filepath.Join(dir, "crawl_archive.warc.gz"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	return w, archive.NewReader(dir, 0), dir
}

func TestWriteRecord_RoundTrip(t *testing.T) {
	w, r, _ := newTestArchive(t)
	ctx := context.Background()
	payload := []byte("<html><body>round trip</body></html>")

	offset, length, err := w.WriteRecord(ctx, "https://example.test/a", payload)
	require.NoError(t, err)
	assert.Equal(t, int64(0), offset)
	assert.Positive(t, length)

	data, err := r.ReadRecord(w.Basename(), offset, length)
	require.NoError(t, err)

	rec, err := warc.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/a", rec.TargetURI)
	assert.Equal(t, payload, rec.Payload)
}

func TestWriteRecord_MiddleRecordReadsAlone(t *testing.T) {
	w, r, _ := newTestArchive(t)
	ctx := context.Background()

	payloads := [][]byte{
		[]byte(strings.Repeat("first ", 100)),
		[]byte("the middle record"),
		[]byte(strings.Repeat("third ", 200)),
	}

	var offsets []int64
	var lengths []int
	for i, p := range payloads {
		off, n, err := w.WriteRecord(ctx, fmt.Sprintf("https://example.test/%d", i), p)
		require.NoError(t, err)
		offsets = append(offsets, off)
		lengths = append(lengths, n)
	}

	// Members are laid out back to back.
	assert.Equal(t, offsets[0]+int64(lengths[0]), offsets[1])
	assert.Equal(t, offsets[1]+int64(lengths[1]), offsets[2])

	data, err := r.ReadRecord(w.Basename(), offsets[1], lengths[1])
	require.NoError(t, err)

	rec, err := warc.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, payloads[1], rec.Payload)
	assert.Equal(t, "https://example.test/1", rec.TargetURI)
}

func TestWriteRecord_ConcurrentWritersStayConsistent(t *testing.T) {
	w, r, _ := newTestArchive(t)
	ctx := context.Background()

	const n = 20
	type located struct {
		url    string
		body   string
		offset int64
		length int
	}

	results := make([]located, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://example.test/p/%d", i)
			body := fmt.Sprintf("document body %d %s", i, strings.Repeat("x", i*13))
			off, length, err := w.WriteRecord(ctx, url, []byte(body))
			assert.NoError(t, err)
			results[i] = located{url: url, body: body, offset: off, length: length}
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		data, err := r.ReadRecord(w.Basename(), res.offset, res.length)
		require.NoError(t, err)

		rec, err := warc.Parse(data)
		require.NoError(t, err)
		assert.Equal(t, res.url, rec.TargetURI)
		assert.Equal(t, []byte(res.body), rec.Payload)
	}
}

func TestWriteRecord_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crawl_archive.warc.gz")
	ctx := context.Background()

	w1, err := archive.OpenWriter(path)
	require.NoError(t, err)
	off1, len1, err := w1.WriteRecord(ctx, "https://example.test/1", []byte("one"))
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2, err := archive.OpenWriter(path)
	require.NoError(t, err)
	defer w2.Close()
	off2, _, err := w2.WriteRecord(ctx, "https://example.test/2", []byte("two"))
	require.NoError(t, err)

	assert.Equal(t, off1+int64(len1), off2, "reopen must append, not truncate")

	r := archive.NewReader(dir, 0)
	data, err := r.ReadRecord("crawl_archive.warc.gz", off1, len1)
	require.NoError(t, err)
	rec, err := warc.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), rec.Payload)
}

func TestWriteRecord_ClosedWriter(t *testing.T) {
	w, _, _ := newTestArchive(t)
	require.NoError(t, w.Close())

	_, _, err := w.WriteRecord(context.Background(), "https://example.test", []byte("x"))
	assert.ErrorIs(t, err, archive.ErrWriterClosed)
}

func TestWriteRecord_CanceledContext(t *testing.T) {
	w, _, _ := newTestArchive(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := w.WriteRecord(ctx, "https://example.test", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadRecord_ShortRead(t *testing.T) {
	w, r, _ := newTestArchive(t)

	offset, length, err := w.WriteRecord(context.Background(), "https://example.test", []byte("body"))
	require.NoError(t, err)

	// Asking for more bytes than the file holds is a short read.
	_, err = r.ReadRecord(w.Basename(), offset, length+10)
	assert.True(t, archive.IsShortRead(err), "want short read, got %v", err)

	_, err = r.ReadRecord(w.Basename(), offset, 0)
	assert.True(t, archive.IsShortRead(err))
}

func TestReadRecord_TruncatedMember(t *testing.T) {
	w, r, _ := newTestArchive(t)

	offset, length, err := w.WriteRecord(context.Background(), "https://example.test", []byte("some payload"))
	require.NoError(t, err)

	// A prefix of the member is readable but not a complete gzip stream.
	_, err = r.ReadRecord(w.Basename(), offset, length/2)
	assert.Error(t, err)
}

func TestReadRecord_OversizeRejected(t *testing.T) {
	dir := t.TempDir()
	w, err := archive.OpenWriter(filepath.Join(dir, "a.warc.gz"))
	require.NoError(t, err)
	defer w.Close()

	// Highly compressible payload: small on disk, large inflated.
	payload := []byte(strings.Repeat("a", 1<<20))
	offset, length, err := w.WriteRecord(context.Background(), "https://example.test", payload)
	require.NoError(t, err)

	r := archive.NewReader(dir, 1024)
	_, err = r.ReadRecord("a.warc.gz", offset, length)
	assert.True(t, archive.IsTooLarge(err), "want size cap error, got %v", err)

	// The same slice passes with the default cap.
	data, err := archive.NewReader(dir, 0).ReadRecord("a.warc.gz", offset, length)
	require.NoError(t, err)
	rec, err := warc.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, payload, rec.Payload)
}

func TestReadRecord_MissingFile(t *testing.T) {
	r := archive.NewReader(t.TempDir(), 0)

	_, err := r.ReadRecord("nope.warc.gz", 0, 10)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
