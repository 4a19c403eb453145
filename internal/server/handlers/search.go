package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loupelabs/loupe/internal/server/middleware"
	"github.com/loupelabs/loupe/pkg/ranker"
)

// Searcher executes a ranked query.
type Searcher interface {
	Search(ctx context.Context, query string) (results []ranker.Result, cached bool, err error)
}

// Search serves GET /search.
type Search struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewSearch returns the search endpoint handler.
func NewSearch(s Searcher, logger *zap.Logger) *Search {
	return &Search{searcher: s, logger: logger}
}

// SearchResponse is the /search payload.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []ranker.Result `json:"results"`
	Meta    SearchMeta      `json:"meta"`
}

// SearchMeta carries result count and serve latency.
type SearchMeta struct {
	Count     int   `json:"count"`
	LatencyMS int64 `json:"latency_ms"`
}

// Handle parses the q parameter, runs the query, and writes the ranked
// results.
func (s *Search) Handle(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		middleware.WriteError(w, r, http.StatusBadRequest, middleware.CodeInvalidQuery,
			"query parameter q must not be empty", nil)
		return
	}

	start := time.Now()
	results, cached, err := s.searcher.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("search failed",
			zap.String("query", query),
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
		)
		middleware.WriteError(w, r, http.StatusInternalServerError, middleware.CodeInternal,
			"search failed", nil)
		return
	}
	latency := time.Since(start)

	// Marshal as [] rather than null when nothing matched.
	if results == nil {
		results = []ranker.Result{}
	}

	s.logger.Info("search served",
		zap.String("query", query),
		zap.Int("results", len(results)),
		zap.Bool("cached", cached),
		zap.Duration("latency", latency),
	)

	writeJSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Results: results,
		Meta:    SearchMeta{Count: len(results), LatencyMS: latency.Milliseconds()},
	})
}
