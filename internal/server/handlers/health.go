package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/loupelabs/loupe/internal/server/middleware"
)

// checkTimeout bounds each dependency probe so a hung backend cannot
// stall the readiness endpoint.
const checkTimeout = 2 * time.Second

// Checker reports whether a dependency is reachable.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

// CheckHealth implements Checker.
func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// Health serves the health endpoints. The bare /health reports process
// liveness only and never touches a dependency; /health/ready probes
// every registered Checker.
type Health struct {
	service  string
	version  string
	logger   *zap.Logger
	checkers map[string]Checker
}

// NewHealth returns a Health for the named service.
func NewHealth(service, version string, logger *zap.Logger) *Health {
	return &Health{
		service:  service,
		version:  version,
		logger:   logger,
		checkers: make(map[string]Checker),
	}
}

// Register adds a named dependency probe to the readiness check.
func (h *Health) Register(name string, c Checker) {
	h.checkers[name] = c
}

// HealthResponse is the payload for the readiness endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health reports process liveness. Load balancers and the compose
// healthcheck poll it on a tight loop, so it stays dependency-free.
func (h *Health) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Service: h.service})
}

// Liveness is the kubernetes-style liveness probe.
func (h *Health) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "alive", Service: h.service})
}

// Readiness probes every registered dependency and reports 503 with a
// per-check breakdown when any of them is down.
func (h *Health) Readiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	healthy := true
	for name, c := range h.checkers {
		status := h.runCheck(r.Context(), name, c)
		checks[name] = status
		if status != "healthy" {
			healthy = false
		}
	}

	if !healthy {
		details := map[string]any{"checks": checks}
		middleware.WriteError(w, r, http.StatusServiceUnavailable, middleware.CodeUnavailable,
			"one or more dependencies are unavailable", details)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ready",
		Service: h.service,
		Version: h.version,
		Checks:  checks,
	})
}

func (h *Health) runCheck(ctx context.Context, name string, c Checker) string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	err := c.CheckHealth(ctx)
	if err == nil {
		return "healthy"
	}
	h.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unhealthy"
}
