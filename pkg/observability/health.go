package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// readinessTimeout bounds a single dependency check
const readinessTimeout = 5 * time.Second

// dependency is one readiness check. A failing required dependency makes
// the service unhealthy, a failing optional one only degrades it.
type dependency struct {
	name     string
	required bool
	check    func(context.Context) error
}

// HealthChecker reports the health of TaskHub's dependencies
type HealthChecker struct {
	version string

	mu   sync.Mutex
	deps []dependency
}

// NewHealthChecker creates a health checker. db is required when non-nil;
// redis is optional.
func NewHealthChecker(db *sql.DB, redis *redis.Client, version string) *HealthChecker {
	h := &HealthChecker{version: version}
	if db != nil {
		h.deps = append(h.deps, dependency{name: "database", required: true, check: pingDatabase(db)})
	}
	if redis != nil {
		h.deps = append(h.deps, dependency{name: "redis", check: func(ctx context.Context) error {
			return redis.Ping(ctx).Err()
		}})
	}
	return h
}

// AddCheck registers an optional dependency check. A failing optional
// dependency degrades the service but does not make it unhealthy.
func (h *HealthChecker) AddCheck(name string, check func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps = append(h.deps, dependency{name: name, check: check})
}

// HealthStatus is the body of the readiness endpoint
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the outcome of one dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Check runs every dependency concurrently and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.Lock()
	deps := append([]dependency(nil), h.deps...)
	h.mu.Unlock()

	results := make([]DependencyStatus, len(deps))
	var wg sync.WaitGroup
	for i, p := range deps {
		wg.Add(1)
		go func(i int, p dependency) {
			defer wg.Done()
			start := time.Now()
			dep := DependencyStatus{Status: StatusHealthy}
			if err := p.check(ctx); err != nil {
				dep.Status = StatusUnhealthy
				dep.Message = err.Error()
			}
			dep.LatencyMS = time.Since(start).Milliseconds()
			results[i] = dep
		}(i, p)
	}
	wg.Wait()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(deps)),
	}
	for i, p := range deps {
		dep := results[i]
		status.Dependencies[p.name] = dep
		if dep.Status == StatusHealthy {
			continue
		}
		switch {
		case p.required:
			status.Status = StatusUnhealthy
		case status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}
	return status
}

// Liveness answers 200 while the process can serve requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// Readiness answers 503 when a required dependency is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

// RegisterHealthRoutes registers /health, /health/live and /health/ready
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func pingDatabase(db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		var one int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	}
}
