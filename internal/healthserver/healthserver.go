// Package healthserver exposes an optional /healthz and /metrics endpoint
// for the long-running `outpost watch` command, adapted from the teacher's
// deep-health-checker (infrastructure/service/healthcheck.go): instead of
// aggregating backend/database component checks, each registered check here
// reports one worker's liveness straight out of the ProcessRegistry.
package healthserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/outpostctl/outpost/internal/processregistry"
)

// WorkerHealth is one worker's reported status.
type WorkerHealth struct {
	Label         string    `json:"label"`
	ModuleName    string    `json:"module_name"`
	Status        string    `json:"status"` // healthy, frozen
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
}

// Response is the aggregate body served at /healthz.
type Response struct {
	Status    string         `json:"status"` // healthy, degraded
	Service   string         `json:"service"`
	Version   string         `json:"version"`
	Uptime    string         `json:"uptime"`
	Workers   []WorkerHealth `json:"workers"`
	CheckedAt time.Time      `json:"checked_at"`
}

// Checker snapshots a ProcessRegistry into a Response on every request.
type Checker struct {
	mu         sync.RWMutex
	registry   *processregistry.Registry
	frozenAt   time.Duration
	service    string
	version    string
	startedAt  time.Time
	lastResult *Response
}

// NewChecker returns a Checker backed by registry. frozenAfter is the same
// heartbeat-staleness threshold the autoloader uses (spec.md §4.9).
func NewChecker(registry *processregistry.Registry, frozenAfter time.Duration, service, version string) *Checker {
	return &Checker{
		registry:  registry,
		frozenAt:  frozenAfter,
		service:   service,
		version:   version,
		startedAt: time.Now(),
	}
}

// Check refreshes the registry and classifies every live worker.
func (c *Checker) Check(ctx context.Context) *Response {
	entries, err := c.registry.Refresh()
	status := "healthy"

	workers := make([]WorkerHealth, 0, len(entries))
	if err == nil {
		for _, e := range entries {
			s := "healthy"
			if processregistry.IsFrozen(e, c.frozenAt) {
				s = "frozen"
				status = "degraded"
			}
			workers = append(workers, WorkerHealth{
				Label:         e.Label,
				ModuleName:    e.ModuleName,
				Status:        s,
				LastHeartbeat: e.LastHeartbeat,
			})
		}
	} else {
		status = "degraded"
	}

	resp := &Response{
		Status:    status,
		Service:   c.service,
		Version:   c.version,
		Uptime:    time.Since(c.startedAt).String(),
		Workers:   workers,
		CheckedAt: time.Now(),
	}

	c.mu.Lock()
	c.lastResult = resp
	c.mu.Unlock()
	return resp
}

// LastResult returns the most recent Check result, or nil before the first
// request is served.
func (c *Checker) LastResult() *Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastResult
}

// Handler returns the /healthz HTTP handler.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := c.Check(r.Context())
		status := http.StatusOK
		if result.Status == "degraded" {
			status = http.StatusOK // frozen workers are visible, not fatal
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(result)
	}
}

// Mux builds the /healthz + /metrics mux for ListenAndServe.
func Mux(checker *Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/healthz", checker.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
