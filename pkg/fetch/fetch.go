// Package fetch retrieves web pages for the crawler.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sentinel errors for fetch outcomes.
var (
	// ErrBadStatus indicates a non-2xx response after redirects.
	ErrBadStatus = errors.New("unexpected http status")

	// ErrEmptyBody indicates a 2xx response with no body bytes.
	ErrEmptyBody = errors.New("empty response body")

	// ErrBodyTooLarge indicates the response exceeded the body cap.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
)

// Config tunes the fetcher.
type Config struct {
	// Timeout bounds the whole request, connect through body read.
	Timeout time.Duration

	// UserAgent is sent on every request.
	UserAgent string

	// MaxBodyBytes caps the response body. Larger bodies fail the fetch
	// rather than being silently truncated; a truncated page would be
	// archived as if complete.
	MaxBodyBytes int64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		UserAgent:    "loupebot/1.0 (+https://github.com/loupelabs/loupe)",
		MaxBodyBytes: 16 << 20, // 16 MiB
	}
}

// Result is one successful fetch.
type Result struct {
	// Body is the full response body.
	Body []byte

	// StatusCode is the final status after redirects.
	StatusCode int

	// ContentType is the response Content-Type header, unparsed.
	ContentType string

	// FinalURL is the URL that produced the body, after redirects.
	FinalURL string
}

// Fetcher performs HTTP GETs with redirects followed and TLS verification
// on. Safe for concurrent use.
type Fetcher struct {
	client *http.Client
	cfg    Config
}

// New builds a Fetcher. Zero-valued config fields fall back to defaults.
func New(cfg Config) *Fetcher {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Fetch GETs url and returns the body. Non-2xx statuses, empty bodies,
// and oversize bodies are errors; the caller marks the document failed.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: %w: %d", url, ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("fetch %s: %w", url, ErrBodyTooLarge)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", url, ErrEmptyBody)
	}

	return &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}
