package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatsStore struct {
	counts    map[string]int64
	countsErr error
	total     int64
	avgdl     float64
	corpusErr error
}

func (f *fakeStatsStore) StatusCounts(ctx context.Context) (map[string]int64, error) {
	return f.counts, f.countsErr
}

func (f *fakeStatsStore) CorpusStats(ctx context.Context) (int64, float64, error) {
	return f.total, f.avgdl, f.corpusErr
}

type fakeStatsQueue struct {
	crawl    int64
	indexing int64
	err      error
}

func (f *fakeStatsQueue) CrawlQueueLen(ctx context.Context) (int64, error) {
	return f.crawl, f.err
}

func (f *fakeStatsQueue) IndexingQueueLen(ctx context.Context) (int64, error) {
	return f.indexing, f.err
}

func TestCollectStats(t *testing.T) {
	store := &fakeStatsStore{
		counts: map[string]int64{"pending": 10, "crawled": 42, "error": 3},
		total:  42,
		avgdl:  187.5,
	}
	q := &fakeStatsQueue{crawl: 7, indexing: 2}
	terms := &fakeTermCounter{terms: 1234}

	s, err := collectStats(context.Background(), store, q, terms)
	require.NoError(t, err)

	assert.Equal(t, int64(55), s.TotalDocuments)
	assert.Equal(t, int64(42), s.CrawledDocs)
	assert.Equal(t, 187.5, s.AvgDocLength)
	assert.Equal(t, int64(7), s.CrawlQueue)
	assert.Equal(t, int64(2), s.IndexingQueue)
	assert.Equal(t, 1234, s.IndexTerms)
	assert.True(t, s.IndexAvailable)
}

func TestCollectStats_NoIndex(t *testing.T) {
	store := &fakeStatsStore{counts: map[string]int64{"pending": 1}}
	q := &fakeStatsQueue{}

	s, err := collectStats(context.Background(), store, q, nil)
	require.NoError(t, err)

	assert.False(t, s.IndexAvailable)
	assert.Zero(t, s.IndexTerms)
}

func TestCollectStats_Errors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		store statsStore
		queue statsQueue
		terms termCounter
	}{
		{
			name:  "status counts fail",
			store: &fakeStatsStore{countsErr: boom},
			queue: &fakeStatsQueue{},
		},
		{
			name:  "corpus stats fail",
			store: &fakeStatsStore{corpusErr: boom},
			queue: &fakeStatsQueue{},
		},
		{
			name:  "queue depth fails",
			store: &fakeStatsStore{},
			queue: &fakeStatsQueue{err: boom},
		},
		{
			name:  "index read fails",
			store: &fakeStatsStore{},
			queue: &fakeStatsQueue{},
			terms: &fakeTermCounter{err: boom},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collectStats(context.Background(), tt.store, tt.queue, tt.terms)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestRenderStats(t *testing.T) {
	s := pipelineStats{
		Documents:      map[string]int64{"pending": 10, "crawled": 42},
		TotalDocuments: 52,
		CrawledDocs:    42,
		AvgDocLength:   187.5,
		CrawlQueue:     7,
		IndexingQueue:  2,
		IndexTerms:     1234,
		IndexAvailable: true,
	}

	var buf bytes.Buffer
	require.NoError(t, renderStats(&buf, s))

	out := buf.String()
	assert.Contains(t, out, "Documents:")
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "52")
	assert.Contains(t, out, "avg doc length")
	assert.Contains(t, out, "187.5")
	assert.Contains(t, out, "distinct terms  1234")

	// Statuses render sorted.
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("crawled")), bytes.Index(buf.Bytes(), []byte("pending")))
}

func TestRenderStats_IndexMissing(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderStats(&buf, pipelineStats{}))

	assert.Contains(t, buf.String(), "not created yet")
	assert.NotContains(t, buf.String(), "distinct terms")
}
