package handler

import (
	"context"
	"net/http"
	"time"

	"settld/pkg/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status      string `json:"status"`
	CurrentTime string `json:"current_time"`
}

type SystemHandler struct {
	store  Pinger
	logger logger.Logger
	now    func() time.Time
}

func NewSystemHandler(store Pinger, log logger.Logger) *SystemHandler {
	return &SystemHandler{
		store:  store,
		logger: log,
		now:    time.Now,
	}
}

// Health is a liveness probe; it never touches the store.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.logger, http.StatusOK, HealthResponse{
		Status:      "HEALTHY",
		CurrentTime: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready reports whether the transaction store is reachable.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("Database ping failed", map[string]interface{}{"error": err.Error()})
		respondJSON(w, h.logger, http.StatusServiceUnavailable, map[string]string{
			"status":   "not ready",
			"database": "unreachable",
		})
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ready"})
}
