package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint. The provider check is a
// real synthetic generation, so a passing response means the whole
// pipeline can serve.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	// Check the primary store
	dbStart := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		checks["database"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["database"] = Check{Status: "pass", Latency: time.Since(dbStart).String()}
	}

	// Check Redis (queue + cache backend); absent means in-process mode
	if h.redis != nil {
		redisStart := time.Now()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks["redis"] = Check{Status: "pass", Latency: time.Since(redisStart).String()}
		}
	} else {
		checks["redis"] = Check{Status: "pass", Message: "in-process queue and cache"}
	}

	// Check the AI provider with a synthetic generation
	if h.prober != nil {
		provStart := time.Now()
		if err := h.prober.HealthCheck(ctx); err != nil {
			checks["provider"] = Check{Status: "fail", Message: "generation probe failed"}
			allHealthy = false
		} else {
			checks["provider"] = Check{Status: "pass", Latency: time.Since(provStart).String()}
		}
	} else {
		checks["provider"] = Check{Status: "fail", Message: "not configured"}
		allHealthy = false
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	h.write(w, statusCode, envelope{Success: allHealthy, Data: resp})
}
