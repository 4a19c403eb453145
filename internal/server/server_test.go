package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loupelabs/loupe/internal/server/handlers"
	"github.com/loupelabs/loupe/internal/server/middleware"
	"github.com/loupelabs/loupe/pkg/ranker"
)

type stubSearcher struct {
	results []ranker.Result
	cached  bool
	err     error
	gotQ    string
}

func (s *stubSearcher) Search(ctx context.Context, query string) ([]ranker.Result, bool, error) {
	s.gotQ = query
	return s.results, s.cached, s.err
}

func newTestServer(s handlers.Searcher) *Server {
	if s == nil {
		s = &stubSearcher{}
	}
	return New("127.0.0.1", 0, Options{Searcher: s})
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body middleware.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}
	if body.Error.RequestID == "" {
		t.Fatal("expected a request id in the error envelope")
	}
}

func TestServer_Port(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"default port", 8080},
		{"custom port", 9000},
		{"zero port", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New("127.0.0.1", tt.port, Options{Searcher: &stubSearcher{}})
			assert.Equal(t, tt.port, srv.Port())
		})
	}
}

func TestServer_Handler(t *testing.T) {
	srv := newTestServer(nil)
	handler := srv.Handler()
	assert.NotNil(t, handler)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(nil)

	// POST to a GET-only endpoint should return 405
	req := httptest.NewRequest(http.MethodPost, "/version", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body middleware.ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&body)
	require.NoError(t, err)

	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestServer_RoutesRegistered(t *testing.T) {
	srv := newTestServer(nil)

	endpoints := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/health/live", http.StatusOK},
		{"GET", "/health/ready", http.StatusOK},
		{"GET", "/version", http.StatusOK},
		{"GET", "/search?q=ada+lovelace", http.StatusOK},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			rec := httptest.NewRecorder()

			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, ep.want, rec.Code, "endpoint %s %s should return %d", ep.method, ep.path, ep.want)
		})
	}
}

func TestServer_SearchFlowsThroughRouter(t *testing.T) {
	searcher := &stubSearcher{
		results: []ranker.Result{
			{ID: 7, URL: "https://en.wikipedia.org/wiki/Ada_Lovelace", Title: "Ada Lovelace", Score: 4.2},
		},
	}
	srv := newTestServer(searcher)

	req := httptest.NewRequest(http.MethodGet, "/search?q=ada", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada", searcher.gotQ)

	var body handlers.SearchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ada", body.Query)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Ada Lovelace", body.Results[0].Title)
	assert.Equal(t, 1, body.Meta.Count)
}

func TestServer_SearchRejectsEmptyQuery(t *testing.T) {
	srv := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INVALID_QUERY", body.Error.Code)
}

func TestServer_RequestIDEchoed(t *testing.T) {
	srv := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "trace-me-123")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "trace-me-123", rec.Header().Get("X-Request-ID"))
}

func TestServer_ReadinessUsesProvidedHealth(t *testing.T) {
	health := handlers.NewHealth(ServiceName, "test", zap.NewNop())
	srv := New("127.0.0.1", 0, Options{Searcher: &stubSearcher{}, Health: health})

	// No checkers registered: ready unconditionally.
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
