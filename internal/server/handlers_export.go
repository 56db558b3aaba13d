package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/services/export"
)

// --- Export handlers ---

// handleLetterExport handles POST /api/letters/{id}/export.
// Renders the letter to DOCX and returns the export record; the artifact
// is fetched separately via GET /api/exports/{id}.
func (s *Server) handleLetterExport(w http.ResponseWriter, r *http.Request, letterID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	letter, ok := s.loadLetterForRead(w, r, ac, letterID)
	if !ok {
		return
	}

	rec, err := s.app.ExportService.Export(r.Context(), letter, ac.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("letter_id", letterID).Msg("Export failed")
		WriteError(w, http.StatusInternalServerError, "export failed")
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"export":       rec,
		"download_url": fmt.Sprintf("/api/exports/%s", rec.ExportID),
	})
}

// handleExportDownload handles GET /api/exports/{id} and streams the DOCX.
func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	exportID := strings.TrimPrefix(r.URL.Path, "/api/exports/")
	if exportID == "" || strings.Contains(exportID, "/") {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	rec, data, err := s.app.ExportService.Fetch(r.Context(), exportID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "export not found")
			return
		}
		s.logger.Error().Err(err).Str("export_id", exportID).Msg("Failed to fetch export")
		WriteError(w, http.StatusInternalServerError, "failed to fetch export")
		return
	}
	if rec.FirmID != ac.FirmID {
		WriteError(w, http.StatusNotFound, "export not found")
		return
	}

	w.Header().Set("Content-Type", export.DOCXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
