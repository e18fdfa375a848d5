package httpd

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/labguard/detection-service/internal/service"
	"github.com/labguard/detection-service/internal/worker"
)

type Handler struct {
	detectionService service.DetectionService
	reportService    service.ReportService
	worker           worker.DetectionWorker
	logger           zerolog.Logger
}

func NewHandler(
	detectionService service.DetectionService,
	reportService service.ReportService,
	detectionWorker worker.DetectionWorker,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		detectionService: detectionService,
		reportService:    reportService,
		worker:           detectionWorker,
		logger:           logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	// Health check
	router.Get("/health", h.HealthCheck)
	router.Get("/status", h.GetServiceStatus)
	router.Get("/stats", h.GetStats)

	// Versioned API
	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/detections", func(r chi.Router) {
			r.Post("/", h.StartDetection)
			r.Post("/async", h.StartDetectionAsync)
			r.Get("/", h.ListRuns)
			r.Get("/{run_id}", h.GetRun)
			r.Get("/{run_id}/results", h.GetRunResults)
		})

		api.Route("/reports", func(r chi.Router) {
			r.Get("/{run_id}", h.GetRunReport)
			r.Get("/{run_id}/markdown", h.GetRunReportMarkdown)
			r.Get("/{run_id}/export", h.ExportRun)
		})
	})
}

func getIntQueryParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	writeJSON(w, http.StatusOK, response)
}
