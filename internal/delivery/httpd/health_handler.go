package httpd

import (
	"net/http"
	"time"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "detection-service",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) GetServiceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.detectionService.GetServiceStatus(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get service status")
		writeError(w, http.StatusInternalServerError, "Failed to get service status")
		return
	}

	if h.worker != nil {
		stats := h.worker.GetStats()
		status.ActiveWorkers = stats.ActiveWorkers
		status.QueueLength = stats.QueueLength
	}

	writeSuccess(w, status)
}
