package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupelabs/loupe/pkg/archive"
	"github.com/loupelabs/loupe/pkg/metastore"
)

// fakeDocLister serves canned rows and records what was asked of it.
type fakeDocLister struct {
	docs      []metastore.Document
	err       error
	gotStatus string
	gotLimit  int
}

func (f *fakeDocLister) List(ctx context.Context, status string, limit int) ([]metastore.Document, error) {
	f.gotStatus = status
	f.gotLimit = limit
	return f.docs, f.err
}

// archivedDoc appends payload to the archive and returns a document row
// whose locator and content hash point at the new record.
func archivedDoc(t *testing.T, w *archive.Writer, id int64, url string, payload []byte) metastore.Document {
	t.Helper()

	offset, length, err := w.WriteRecord(context.Background(), url, payload)
	require.NoError(t, err)

	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])
	file := w.Basename()
	return metastore.Document{
		ID:          id,
		URL:         url,
		Status:      metastore.StatusCrawled,
		FilePath:    &file,
		Offset:      &offset,
		Length:      &length,
		ContentHash: &hash,
	}
}

func newVerifyArchive(t *testing.T) (*archive.Writer, *archive.Reader) {
	t.Helper()

	dir := t.TempDir()
	w, err := archive.OpenWriter(filepath.Join(dir, "crawl_archive.warc.gz"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	return w, archive.NewReader(dir, 0)
}

func TestVerifyDocuments_AllIntact(t *testing.T) {
	w, r := newVerifyArchive(t)

	lister := &fakeDocLister{docs: []metastore.Document{
		archivedDoc(t, w, 1, "https://example.test/a", []byte("<html>alpha</html>")),
		archivedDoc(t, w, 2, "https://example.test/b", []byte("<html>beta</html>")),
		archivedDoc(t, w, 3, "https://example.test/c", []byte("<html>gamma</html>")),
	}}

	rep, err := verifyDocuments(context.Background(), lister, r, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Checked)
	assert.Equal(t, 3, rep.OK)
	assert.Empty(t, rep.Bad)
	assert.Equal(t, metastore.StatusCrawled, lister.gotStatus)
	assert.Equal(t, 0, lister.gotLimit)
}

func TestVerifyDocuments_ReportsDrift(t *testing.T) {
	w, r := newVerifyArchive(t)

	intact := archivedDoc(t, w, 1, "https://example.test/ok", []byte("fine"))

	// Row claims a different URL than the record it points at.
	misfiled := archivedDoc(t, w, 2, "https://example.test/real", []byte("misfiled"))
	misfiled.URL = "https://example.test/claimed"

	// Row whose stored hash no longer matches the archived payload.
	stale := archivedDoc(t, w, 3, "https://example.test/stale", []byte("old bytes"))
	wrong := sha256.Sum256([]byte("new bytes"))
	wrongHash := hex.EncodeToString(wrong[:])
	stale.ContentHash = &wrongHash

	// Row that was never archived at all.
	unarchived := metastore.Document{ID: 4, URL: "https://example.test/lost", Status: metastore.StatusCrawled}

	lister := &fakeDocLister{docs: []metastore.Document{intact, misfiled, stale, unarchived}}

	rep, err := verifyDocuments(context.Background(), lister, r, 0)
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Checked)
	assert.Equal(t, 1, rep.OK)
	require.Len(t, rep.Bad, 3)

	assert.Equal(t, int64(2), rep.Bad[0].ID)
	assert.Equal(t, "record addressed to https://example.test/real", rep.Bad[0].Reason)

	assert.Equal(t, int64(3), rep.Bad[1].ID)
	assert.Equal(t, "payload hash mismatch", rep.Bad[1].Reason)

	assert.Equal(t, int64(4), rep.Bad[2].ID)
	assert.Equal(t, "no archive locator", rep.Bad[2].Reason)
}

func TestVerifyDocuments_SkipsHashWhenUnset(t *testing.T) {
	w, r := newVerifyArchive(t)

	doc := archivedDoc(t, w, 1, "https://example.test/nohash", []byte("payload"))
	doc.ContentHash = nil

	rep, err := verifyDocuments(context.Background(), &fakeDocLister{docs: []metastore.Document{doc}}, r, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.OK)
}

func TestVerifyDocuments_ListError(t *testing.T) {
	_, r := newVerifyArchive(t)

	lister := &fakeDocLister{err: errors.New("connection reset")}
	_, err := verifyDocuments(context.Background(), lister, r, 0)
	assert.EqualError(t, err, "connection reset")
}

func TestVerifyDocuments_CanceledContext(t *testing.T) {
	w, r := newVerifyArchive(t)

	lister := &fakeDocLister{docs: []metastore.Document{
		archivedDoc(t, w, 1, "https://example.test/a", []byte("a")),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := verifyDocuments(ctx, lister, r, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, rep.Checked)
}

func TestCheckDocument_ReadFailure(t *testing.T) {
	w, _ := newVerifyArchive(t)

	doc := archivedDoc(t, w, 1, "https://example.test/a", []byte("a"))
	// Point the locator at a file the reader root does not contain.
	missing := "nope.warc.gz"
	doc.FilePath = &missing

	reason := checkDocument(doc, archive.NewReader(t.TempDir(), 0))
	assert.Contains(t, reason, "nope.warc.gz")
}

func TestScanArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crawl_archive.warc.gz")
	ctx := context.Background()

	w, err := archive.OpenWriter(path)
	require.NoError(t, err)
	for i, body := range []string{"one", "two", "three"} {
		_, _, err := w.WriteRecord(ctx, "https://example.test/"+string(rune('a'+i)), []byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)

	rep, err := scanArchive(path)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Records)
	assert.Equal(t, info.Size(), rep.Bytes, "member lengths should cover the whole file")
}

func TestScanArchive_TruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crawl_archive.warc.gz")
	ctx := context.Background()

	w, err := archive.OpenWriter(path)
	require.NoError(t, err)
	_, _, err = w.WriteRecord(ctx, "https://example.test/1", []byte("intact"))
	require.NoError(t, err)
	off2, _, err := w.WriteRecord(ctx, "https://example.test/2", []byte("to be cut"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, off2+(info.Size()-off2)/2))

	rep, err := scanArchive(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 1 records")
	assert.Equal(t, 1, rep.Records)
}

func TestScanArchive_MissingFile(t *testing.T) {
	_, err := scanArchive(filepath.Join(t.TempDir(), "nope.warc.gz"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
