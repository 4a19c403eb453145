// Package server assembles the HTTP search API: the chi router, the
// middleware chain, and the listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/loupelabs/loupe/internal/server/handlers"
	"github.com/loupelabs/loupe/internal/server/middleware"
	"github.com/loupelabs/loupe/internal/version"
)

// Listener timeouts. Read guards against slow clients holding
// connections open; shutdown bounds the drain on SIGTERM so a stuck
// request cannot block process exit.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second

	// DefaultRequestTimeout caps handler time per request. Queries
	// that miss the cache fan out to the index, Postgres, and the
	// archive, so this stays well above a single backend timeout.
	DefaultRequestTimeout = 15 * time.Second
)

// ServiceName identifies this process in health payloads. The compose
// healthcheck greps for it, so it is part of the wire contract.
const ServiceName = "ranker"

// Options carries the handler dependencies for New.
type Options struct {
	// Searcher answers /search. Required.
	Searcher handlers.Searcher

	// Health serves the health endpoints. When nil a registry with no
	// dependency checks is used, which reports ready unconditionally.
	Health *handlers.Health

	// Logger receives request logs and handler errors. Defaults to a
	// no-op logger.
	Logger *zap.Logger

	// RequestTimeout bounds each request's context. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Server is the search API front end.
type Server struct {
	host    string
	port    int
	logger  *zap.Logger
	handler http.Handler
}

// New assembles the router and middleware chain. It does not listen;
// call Start for that, or serve Handler directly in tests.
func New(host string, port int, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	health := opts.Health
	if health == nil {
		health = handlers.NewHealth(ServiceName, version.Get().Version, logger)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	search := handlers.NewSearch(opts.Searcher, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(timeout))

	r.NotFound(middleware.NotFound())
	r.MethodNotAllowed(middleware.MethodNotAllowed())

	r.Get("/health", health.Health)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Get("/version", handlers.Version())
	r.Get("/search", search.Handle)

	return &Server{
		host:    host,
		port:    port,
		logger:  logger,
		handler: r,
	}
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start listens and serves until ctx is cancelled, then drains
// in-flight requests for up to shutdownTimeout before returning.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("http server draining", zap.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}
