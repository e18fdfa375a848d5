package httpd

import (
	"net/http"
	"strings"
)

func (h *Handler) GetRunReport(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runIDParam(w, r)
	if !ok {
		return
	}

	report, err := h.reportService.GetRunReport(r.Context(), runID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get run report")
		writeError(w, http.StatusInternalServerError, "Failed to get report")
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "Detection run not found")
		return
	}

	writeSuccess(w, report)
}

func (h *Handler) GetRunReportMarkdown(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runIDParam(w, r)
	if !ok {
		return
	}

	body, err := h.reportService.RenderMarkdown(r.Context(), runID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to render markdown report")
		writeError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}
	if body == nil {
		writeError(w, http.StatusNotFound, "Detection run not found")
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handler) ExportRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runIDParam(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	body, contentType, err := h.reportService.ExportRun(r.Context(), runID, format)
	if err != nil {
		if strings.HasPrefix(err.Error(), "unsupported export format") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Failed to export run")
		writeError(w, http.StatusInternalServerError, "Failed to export run")
		return
	}
	if body == nil {
		writeError(w, http.StatusNotFound, "Detection run not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
