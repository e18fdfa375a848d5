package httpd

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/labguard/detection-service/internal/models"
)

func (h *Handler) StartDetection(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeDetectionRequest(w, r)
	if !ok {
		return
	}

	result, err := h.detectionService.Run(r.Context(), req)
	if err != nil {
		h.handleDetectionError(w, err)
		return
	}

	writeSuccess(w, result)
}

func (h *Handler) StartDetectionAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeDetectionRequest(w, r)
	if !ok {
		return
	}

	runID, err := h.detectionService.RunAsync(r.Context(), req)
	if err != nil {
		h.handleDetectionError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"data": models.StartDetectionResponse{
			RunID:     runID,
			Status:    models.RunStatusPending.String(),
			StatusURL: "/api/v1/detections/" + runID,
		},
	})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runIDParam(w, r)
	if !ok {
		return
	}

	run, err := h.detectionService.GetRun(r.Context(), runID)
	if err != nil {
		h.handleDetectionError(w, err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Detection run not found")
		return
	}

	writeSuccess(w, run)
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	page := getIntQueryParam(r, "page", 1)
	limit := getIntQueryParam(r, "limit", 20)

	runs, err := h.detectionService.ListRuns(r.Context(), page, limit)
	if err != nil {
		h.handleDetectionError(w, err)
		return
	}

	writeSuccess(w, runs)
}

func (h *Handler) GetRunResults(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.detectionService.GetRunResult(r.Context(), runID)
	if err != nil {
		h.handleDetectionError(w, err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "Detection run not found")
		return
	}

	writeSuccess(w, result)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.detectionService.GetStats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get statistics")
		writeError(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}

	writeSuccess(w, stats)
}

func (h *Handler) decodeDetectionRequest(w http.ResponseWriter, r *http.Request) (*models.StartDetectionRequest, bool) {
	var req models.StartDetectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}

	if len(req.Submissions) < 2 {
		writeError(w, http.StatusBadRequest, "At least 2 submissions are required")
		return nil, false
	}
	for _, sub := range req.Submissions {
		if strings.TrimSpace(sub.StudentID) == "" {
			writeError(w, http.StatusBadRequest, "Every submission needs a student_id")
			return nil, false
		}
	}

	return &req, true
}

func (h *Handler) runIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	runID := chi.URLParam(r, "run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "Run ID is required")
		return "", false
	}
	if _, err := uuid.Parse(runID); err != nil {
		writeError(w, http.StatusBadRequest, "Run ID must be a valid UUID")
		return "", false
	}
	return runID, true
}

func (h *Handler) handleDetectionError(w http.ResponseWriter, err error) {
	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "at least 2 submissions"),
		strings.Contains(errMsg, "duplicate student_id"),
		strings.Contains(errMsg, "empty student_id"):
		writeError(w, http.StatusBadRequest, errMsg)
	case strings.Contains(errMsg, "requires a message queue"):
		h.logger.Error().Err(err).Msg("Async detection unavailable")
		writeError(w, http.StatusServiceUnavailable, "Async detection is not available")
	default:
		h.logger.Error().Err(err).Msg("Detection error")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
