package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check for a component
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// Response represents the overall health response
type Response struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    []Check           `json:"checks"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler manages health and readiness checks
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	metadata map[string]string
	ready    bool
}

// NewHandler creates a new health handler
func NewHandler() *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		metadata: make(map[string]string),
	}
}

// RegisterChecker adds a health checker
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// SetMetadata sets metadata for the health response
func (h *Handler) SetMetadata(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metadata[key] = value
}

// SetReady marks the service as ready
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the readiness status
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// HealthHandler handles health check requests
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		names = append(names, k)
		checkers[k] = v
	}
	metadata := h.copyMetadata()
	h.mu.RUnlock()
	sort.Strings(names)

	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    []Check{},
		Metadata:  metadata,
	}

	for _, name := range names {
		check := checkers[name].Check(ctx)
		check.Name = name
		response.Checks = append(response.Checks, check)

		if check.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		} else if check.Status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

// ReadinessHandler handles readiness check requests
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	metadata := h.copyMetadata()
	h.mu.RUnlock()

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now(),
		"metadata":  metadata,
	})
}

// LivenessHandler handles liveness check requests (always returns OK if service is running)
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

// caller holds h.mu
func (h *Handler) copyMetadata() map[string]string {
	metadata := make(map[string]string, len(h.metadata))
	for k, v := range h.metadata {
		metadata[k] = v
	}
	return metadata
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// FuncChecker adapts a probe function to a Checker. A nil probe reports
// the component as not configured.
type FuncChecker struct {
	label string
	probe func(ctx context.Context) error
}

// NewFuncChecker creates a checker for the labelled component
func NewFuncChecker(label string, probe func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{label: label, probe: probe}
}

// Check runs the probe
func (c *FuncChecker) Check(ctx context.Context) Check {
	start := time.Now()

	if c.probe == nil {
		return Check{
			Status:      StatusHealthy,
			Message:     c.label + " not configured",
			LastChecked: time.Now(),
			Duration:    time.Since(start) / time.Millisecond,
		}
	}

	if err := c.probe(ctx); err != nil {
		return Check{
			Status:      StatusUnhealthy,
			Message:     c.label + ": " + err.Error(),
			LastChecked: time.Now(),
			Duration:    time.Since(start) / time.Millisecond,
		}
	}

	return Check{
		Status:      StatusHealthy,
		Message:     c.label + " OK",
		LastChecked: time.Now(),
		Duration:    time.Since(start) / time.Millisecond,
	}
}
