package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultHealthTimeout = 5 * time.Second

	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Default health check paths.
const (
	defaultLivenessPath  = "/health/live"
	defaultReadinessPath = "/health/ready"
)

// CheckFunc is a readiness check. It matches the Healthcheck closures in
// pkg/redis.
type CheckFunc func(ctx context.Context) error

type healthChecks map[string]CheckFunc

type healthResponse struct {
	Checks  map[string]healthCheck `json:"checks,omitempty"`
	Status  string                 `json:"status"`
	Clients int                    `json:"clients"`
}

type healthCheck struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// healthConfig holds health endpoint configuration.
type healthConfig struct {
	checks        healthChecks
	livenessPath  string
	readinessPath string
	timeout       time.Duration
}

// HealthOption configures health check endpoints.
type HealthOption func(*healthConfig)

// WithLivenessPath sets the liveness endpoint path. Defaults to
// "/health/live".
func WithLivenessPath(path string) HealthOption {
	return func(c *healthConfig) {
		if path != "" {
			c.livenessPath = path
		}
	}
}

// WithReadinessPath sets the readiness endpoint path. Defaults to
// "/health/ready".
func WithReadinessPath(path string) HealthOption {
	return func(c *healthConfig) {
		if path != "" {
			c.readinessPath = path
		}
	}
}

// WithReadinessCheck adds a named readiness check.
//
//	volt.WithReadinessCheck("redis", redis.Healthcheck(client))
func WithReadinessCheck(name string, fn CheckFunc) HealthOption {
	return func(c *healthConfig) {
		if fn != nil {
			c.checks[name] = fn
		}
	}
}

// WithHealthTimeout bounds a readiness probe. Defaults to 5s.
func WithHealthTimeout(d time.Duration) HealthOption {
	return func(c *healthConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func newHealthConfig(opts ...HealthOption) *healthConfig {
	cfg := &healthConfig{
		livenessPath:  defaultLivenessPath,
		readinessPath: defaultReadinessPath,
		checks:        make(healthChecks),
		timeout:       defaultHealthTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// livenessHandler always responds OK while the process runs. The body
// reports how many connections the dispatcher tracks.
func livenessHandler(conns *ConnTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wantsJSON(r) {
			writeHealthJSON(w, http.StatusOK, &healthResponse{Status: statusHealthy, Clients: conns.Len()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// readinessHandler runs every check and answers 503 if any failed.
func readinessHandler(cfg *healthConfig, conns *ConnTracker, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := runChecks(r.Context(), cfg.checks, cfg.timeout, log)
		resp.Clients = conns.Len()

		status := http.StatusOK
		if resp.Status == statusUnhealthy {
			status = http.StatusServiceUnavailable
		}

		if wantsJSON(r) {
			writeHealthJSON(w, status, resp)
			return
		}

		w.WriteHeader(status)
		if resp.Status == statusHealthy {
			_, _ = w.Write([]byte("OK"))
		} else {
			_, _ = w.Write([]byte("Service Unavailable"))
		}
	}
}

// runChecks executes all checks in parallel. A failed check never cancels
// the others.
func runChecks(ctx context.Context, checks healthChecks, timeout time.Duration, log *slog.Logger) *healthResponse {
	if len(checks) == 0 {
		return &healthResponse{Status: statusHealthy}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		g        errgroup.Group
		results  = make(map[string]healthCheck, len(checks))
		hasError bool
	)

	for name, check := range checks {
		g.Go(func() error {
			start := time.Now()
			err := check(ctx)
			result := healthCheck{Status: statusHealthy, Duration: time.Since(start).String()}
			if err != nil {
				result.Status = statusUnhealthy
				result.Error = err.Error()
				log.WarnContext(ctx, "health check failed",
					slog.String("check", name),
					slog.Any("error", err))
			}

			mu.Lock()
			defer mu.Unlock()
			results[name] = result
			hasError = hasError || err != nil
			return nil
		})
	}
	_ = g.Wait()

	status := statusHealthy
	if hasError {
		status = statusUnhealthy
	}
	return &healthResponse{Status: status, Checks: results}
}

func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeHealthJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
