package handlers

import (
	"net/http"
	"time"
)

const Version = "1.0.0"

type HealthHandler struct {
	service     string
	environment string
	started     time.Time
	endpoints   map[string]string
}

func NewHealthHandler(service, environment string, endpoints map[string]string) *HealthHandler {
	return &HealthHandler{
		service:     service,
		environment: environment,
		started:     time.Now(),
		endpoints:   endpoints,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"service":     h.service,
		"version":     Version,
		"environment": h.environment,
		"timestamp":   time.Now().UTC(),
	})
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":        h.service,
		"version":        Version,
		"status":         "running",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"endpoints":      h.endpoints,
	})
}
