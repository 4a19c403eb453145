// Package ranker scores indexed documents against queries with Okapi BM25
// and assembles the result payload served by the HTTP API.
//
// A Searcher is read-only over every store it touches: postings come from
// the key-value index, display fields and corpus statistics from the
// metadata store, snippet text from the archive, and whole result sets are
// cached in Redis keyed by the normalized query.
package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loupelabs/loupe/pkg/htmltext"
	"github.com/loupelabs/loupe/pkg/index"
	"github.com/loupelabs/loupe/pkg/metastore"
	"github.com/loupelabs/loupe/pkg/queue"
	"github.com/loupelabs/loupe/pkg/tokenize"
	"github.com/loupelabs/loupe/pkg/warc"
)

// Index serves posting lists. A missing term yields an empty list.
type Index interface {
	Postings(term string) ([]index.Posting, error)
}

// Store is the slice of the metadata store the ranker uses.
type Store interface {
	CorpusStats(ctx context.Context) (total int64, avgdl float64, err error)
	DocLengths(ctx context.Context, ids []int64) (map[int64]int, error)
	Summaries(ctx context.Context, ids []int64) (map[int64]metastore.Summary, error)
}

// Cache stores whole result sets keyed by normalized query. A miss is
// queue.ErrEmpty.
type Cache interface {
	CachedResults(ctx context.Context, query string) ([]byte, error)
	CacheResults(ctx context.Context, query string, payload []byte, ttl time.Duration) error
}

// Archive reads single records back out of the WARC archive for snippet
// extraction.
type Archive interface {
	ReadRecord(file string, offset int64, length int) ([]byte, error)
}

// Config configures ranking behavior.
type Config struct {
	// TopK is the number of results returned per query.
	// Default: 10
	TopK int

	// CacheTTL bounds how long a result set stays cached. Zero disables
	// the cache entirely.
	// Default: 60s (via DefaultConfig; the zero value disables caching)
	CacheTTL time.Duration

	// StatsTTL bounds how long corpus statistics (N, avgdl) are reused
	// before being recomputed.
	// Default: 30s
	StatsTTL time.Duration
}

// DefaultConfig returns the default ranking configuration.
func DefaultConfig() Config {
	return Config{
		TopK:     10,
		CacheTTL: 60 * time.Second,
		StatsTTL: 30 * time.Second,
	}
}

// Result is one ranked search hit.
type Result struct {
	ID      int64   `json:"id"`
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Searcher executes queries. Safe for concurrent use.
type Searcher struct {
	index   Index
	store   Store
	cache   Cache
	archive Archive
	logger  *zap.Logger
	config  Config

	// Corpus statistics, recomputed lazily behind StatsTTL.
	statsMu sync.Mutex
	statsAt time.Time
	total   int64
	avgdl   float64
}

// New creates a Searcher. Zero-valued config fields other than CacheTTL
// fall back to defaults; CacheTTL zero disables caching.
func New(idx Index, store Store, cache Cache, archive Archive, logger *zap.Logger, cfg Config) *Searcher {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = def.StatsTTL
	}
	return &Searcher{
		index:   idx,
		store:   store,
		cache:   cache,
		archive: archive,
		logger:  logger,
		config:  cfg,
	}
}

// Search ranks the corpus against query and returns the top results.
// cached reports whether the results were served from the result cache.
// An empty or all-stopword query returns no results without touching any
// store.
func (s *Searcher) Search(ctx context.Context, query string) (results []Result, cached bool, err error) {
	terms := tokenize.QueryTerms(query)
	if len(terms) == 0 {
		return []Result{}, false, nil
	}
	key := strings.Join(terms, " ")

	if s.config.CacheTTL > 0 {
		if hit, ok := s.cacheLookup(ctx, key); ok {
			return hit, true, nil
		}
	}

	results, err = s.rank(ctx, terms)
	if err != nil {
		return nil, false, err
	}

	if s.config.CacheTTL > 0 {
		s.cacheStore(ctx, key, results)
	}
	return results, false, nil
}

func (s *Searcher) cacheLookup(ctx context.Context, key string) ([]Result, bool) {
	payload, err := s.cache.CachedResults(ctx, key)
	if err != nil {
		if !queue.IsEmpty(err) {
			s.logger.Warn("result cache lookup", zap.String("query", key), zap.Error(err))
		}
		return nil, false
	}

	var results []Result
	if err := json.Unmarshal(payload, &results); err != nil {
		s.logger.Warn("discarding corrupt cache entry", zap.String("query", key), zap.Error(err))
		return nil, false
	}
	return results, true
}

// cacheStore is best-effort: the response does not wait on a failed write.
func (s *Searcher) cacheStore(ctx context.Context, key string, results []Result) {
	payload, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := s.cache.CacheResults(ctx, key, payload, s.config.CacheTTL); err != nil {
		s.logger.Warn("result cache store", zap.String("query", key), zap.Error(err))
	}
}

func (s *Searcher) rank(ctx context.Context, terms []string) ([]Result, error) {
	total, avgdl, err := s.corpusStats(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []Result{}, nil
	}

	type termPostings struct {
		term     string
		postings []index.Posting
	}

	found := make([]termPostings, 0, len(terms))
	candidates := make(map[int64]struct{})
	for _, term := range terms {
		ps, err := s.index.Postings(term)
		if err != nil {
			return nil, fmt.Errorf("postings %q: %w", term, err)
		}
		if len(ps) == 0 {
			continue
		}
		found = append(found, termPostings{term: term, postings: ps})
		for _, p := range ps {
			candidates[p.DocID] = struct{}{}
		}
	}
	if len(found) == 0 {
		return []Result{}, nil
	}

	ids := make([]int64, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	lengths, err := s.store.DocLengths(ctx, ids)
	if err != nil {
		return nil, err
	}

	scores := make(map[int64]float64, len(candidates))
	for _, tp := range found {
		w := idf(total, int64(len(tp.postings)))
		for _, p := range tp.postings {
			dl := avgdl
			if n, ok := lengths[p.DocID]; ok && n > 0 {
				dl = float64(n)
			}
			scores[p.DocID] += w * termScore(p.TF, dl, avgdl)
		}
	}

	type scoredDoc struct {
		id    int64
		score float64
	}
	ranked := make([]scoredDoc, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, scoredDoc{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > s.config.TopK {
		ranked = ranked[:s.config.TopK]
	}

	topIDs := make([]int64, len(ranked))
	for i, sd := range ranked {
		topIDs[i] = sd.id
	}
	summaries, err := s.store.Summaries(ctx, topIDs)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(ranked))
	for _, sd := range ranked {
		sum, ok := summaries[sd.id]
		if !ok {
			s.logger.Warn("ranked document has no row", zap.Int64("doc_id", sd.id))
			continue
		}
		title := sum.Title
		if title == "" {
			title = sum.URL
		}
		results = append(results, Result{
			ID:      sd.id,
			URL:     sum.URL,
			Title:   title,
			Snippet: s.snippetFor(sum, terms),
			Score:   sd.score,
		})
	}
	return results, nil
}

// corpusStats serves N and avgdl from the lazy cache, refreshing it after
// StatsTTL. A failed refresh serves the previous values rather than
// failing the query.
func (s *Searcher) corpusStats(ctx context.Context) (int64, float64, error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	if !s.statsAt.IsZero() && time.Since(s.statsAt) < s.config.StatsTTL {
		return s.total, s.avgdl, nil
	}

	total, avgdl, err := s.store.CorpusStats(ctx)
	if err != nil {
		if !s.statsAt.IsZero() {
			s.logger.Warn("corpus stats refresh failed, serving stale", zap.Error(err))
			return s.total, s.avgdl, nil
		}
		return 0, 0, err
	}
	if avgdl <= 0 {
		avgdl = defaultAvgDocLen
	}

	s.total, s.avgdl, s.statsAt = total, avgdl, time.Now()
	return total, avgdl, nil
}

// snippetFor extracts the highlighted snippet for one hit. Any failure
// along the way degrades to an empty snippet; the hit itself still ranks.
func (s *Searcher) snippetFor(sum metastore.Summary, terms []string) string {
	if sum.File == nil || sum.Offset == nil || sum.Length == nil {
		return ""
	}

	raw, err := s.archive.ReadRecord(*sum.File, *sum.Offset, *sum.Length)
	if err != nil {
		s.logger.Warn("snippet archive read", zap.String("url", sum.URL), zap.Error(err))
		return ""
	}
	rec, err := warc.Parse(raw)
	if err != nil {
		s.logger.Warn("snippet record parse", zap.String("url", sum.URL), zap.Error(err))
		return ""
	}

	text, _ := htmltext.Extract(rec.Payload)
	return buildSnippet(text, terms)
}
