package handler

import (
	"net/http"
	"time"

	"github.com/flagstream-io/feature-flag-platform/internal/events"
	"github.com/flagstream-io/feature-flag-platform/internal/store"
	"github.com/flagstream-io/feature-flag-platform/internal/updates"
)

// HealthHandler handles health and status endpoints.
type HealthHandler struct {
	store      *store.FeatureStore
	natsClient *updates.Client
	startTime  time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(featureStore *store.FeatureStore, natsClient *updates.Client) *HealthHandler {
	return &HealthHandler{
		store:      featureStore,
		natsClient: natsClient,
		startTime:  time.Now(),
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}
	if !h.store.IsInitialized() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "flag store not initialized",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Status handles GET /status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":       events.Version,
		"uptimeSeconds": int(time.Since(h.startTime).Seconds()),
		"flags":         len(h.store.AllFlags()),
		"initialized":   h.store.IsInitialized(),
	})
}
