package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "github.com/auscope/vgljobs/internal/errors"
)

// Check results.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
	StatusDegraded  = "degraded"
)

// DefaultCheckTimeout bounds each checker.
const DefaultCheckTimeout = 2 * time.Second

// Checker reports the health of one dependency.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the body of a healthy probe.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered checkers for the health endpoints.
type HealthManager struct {
	version string
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		timeout:  DefaultCheckTimeout,
		checkers: make(map[string]Checker),
	}
}

// RegisterChecker adds or replaces the named checker.
func (m *HealthManager) RegisterChecker(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		m.mu.RLock()
		c := m.checkers[name]
		m.mu.RUnlock()

		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := c.CheckHealth(cctx)
		cancel()
		switch {
		case err == nil:
			results[name] = StatusHealthy
		case errors.Is(err, context.DeadlineExceeded):
			results[name] = StatusTimeout
		default:
			results[name] = StatusUnhealthy
		}
	}
	return results
}

// determineOverallStatus: any unhealthy check is unhealthy, a timeout is
// degraded.
func (m *HealthManager) determineOverallStatus(results map[string]string) string {
	status := StatusHealthy
	for _, r := range results {
		switch r {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusTimeout:
			status = StatusDegraded
		}
	}
	return status
}

// HealthHandler runs every checker. Unhealthy results give a 503 envelope
// with the per-check results in details.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	results := m.runChecks(r.Context())
	status := m.determineOverallStatus(results)
	if status == StatusUnhealthy {
		apperrors.WriteError(w, r, http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable,
			"service unhealthy", map[string]any{"checks": results})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   m.version,
		Timestamp: time.Now().UTC(),
		Checks:    results,
	})
}

// LivenessHandler reports the process is serving; it runs no checks.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now().UTC(),
	})
}

// ReadinessHandler is HealthHandler; the service is ready when its
// dependencies are.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
