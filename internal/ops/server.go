// Package ops serves the operational HTTP surface: liveness, readiness
// and Prometheus metrics.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hooplab/courtreel/internal/log"
	"github.com/hooplab/courtreel/internal/media"
)

// Status classifies a component check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one component's verdict.
type CheckResult struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the /healthz and /readyz body.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Server wires the operational endpoints over the daemon's dependencies.
type Server struct {
	Redis    *redis.Client
	Store    media.Store
	BlobRoot string
	Version  string
}

// Router builds the chi router for the ops listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// handleHealth is pure liveness: the process is up and serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    StatusHealthy,
		Version:   s.Version,
		Timestamp: time.Now().UTC(),
	})
}

// handleReady verifies every dependency the workers need: the queue's
// Redis, the asset store and a writable blob root.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]CheckResult{
		"redis": s.checkRedis(ctx),
		"store": s.checkStore(ctx),
		"blobs": s.checkBlobs(),
	}

	status := StatusHealthy
	code := http.StatusOK
	for _, c := range checks {
		if c.Status != StatusHealthy {
			status = StatusUnhealthy
			code = http.StatusServiceUnavailable
			break
		}
	}
	if code != http.StatusOK {
		logger := log.WithComponent("ops")
		logger.Warn().Interface("checks", checks).Msg("readiness check failed")
	}
	writeJSON(w, code, HealthResponse{
		Status:    status,
		Version:   s.Version,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

func (s *Server) checkRedis(ctx context.Context) CheckResult {
	if s.Redis == nil {
		return CheckResult{Status: StatusUnhealthy, Error: "not configured"}
	}
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

func (s *Server) checkStore(ctx context.Context) CheckResult {
	if s.Store == nil {
		return CheckResult{Status: StatusUnhealthy, Error: "not configured"}
	}
	// A miss on a sentinel ID still proves the store answers queries.
	if _, err := s.Store.Get(ctx, "readiness-probe"); err != nil && !errors.Is(err, media.ErrNotFound) {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

func (s *Server) checkBlobs() CheckResult {
	probe := filepath.Join(s.BlobRoot, ".ready")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	_ = os.Remove(probe)
	return CheckResult{Status: StatusHealthy}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
