package handler

import (
	"context"
	"log"
	"net/http"
	"runtime"
	"time"

	"wbtrack-rest-api/pkg/apierror"
	"wbtrack-rest-api/pkg/response"
)

// StartTime tracks when the server started for uptime calculation
var StartTime = time.Now()

// ReadinessCheck is one dependency probed by /ready.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler serves liveness and readiness probes.
type Handler struct {
	version      string
	checks       []ReadinessCheck
	checkTimeout time.Duration
}

// New creates a new health handler.
func New(version string, checks ...ReadinessCheck) *Handler {
	return &Handler{
		version:      version,
		checks:       checks,
		checkTimeout: 2 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	MemoryMB      float64   `json:"memory_mb"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(StartTime).Seconds()),
		MemoryMB:      float64(int(memoryMB*100)) / 100,
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, resp)
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Ready handles GET /api/v1/ready
// A failed check turns the reply into a 503 error envelope naming each unavailable dependency.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := []Check{
		{Name: "api", Status: "ok"},
	}

	var failed []apierror.FieldError
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
		err := c.Ping(ctx)
		cancel()

		status := "ok"
		if err != nil {
			log.Printf("[Health] %s check failed: %v", c.Name, err)
			status = "unavailable"
			failed = append(failed, apierror.FieldError{Field: c.Name, Message: status})
		}
		checks = append(checks, Check{Name: c.Name, Status: status})
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")

	if len(failed) > 0 {
		response.Error(w, apierror.ServiceUnavailable("Service is not ready").WithDetails(failed...))
		return
	}

	response.OK(w, ReadyResponse{
		Ready:     true,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
