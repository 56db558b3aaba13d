package server

import (
	"errors"
	"net/http"

	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
	"github.com/dictumlegal/dictum/internal/services/templates"
)

// --- Template handlers ---

// handleTemplateList handles GET /api/templates?matter_type=x.
func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	matterType := r.URL.Query().Get("matter_type")
	list, err := s.app.TemplateService.List(r.Context(), ac.FirmID, matterType)
	if err != nil {
		s.logger.Error().Err(err).Str("firm_id", ac.FirmID).Msg("Failed to list templates")
		WriteError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"templates": list})
}

// handleTemplateCreate handles POST /api/templates.
func (s *Server) handleTemplateCreate(w http.ResponseWriter, r *http.Request) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	var tmpl models.Template
	if !DecodeJSON(w, r, &tmpl) {
		return
	}

	// Ownership comes from the session, never the payload.
	tmpl.TemplateID = ""
	tmpl.FirmID = ac.FirmID
	tmpl.CreatedBy = ac.UserID

	if tmpl.Name == "" || tmpl.Body == "" {
		WriteError(w, http.StatusBadRequest, "name and body are required")
		return
	}

	if err := s.app.TemplateService.Save(r.Context(), &tmpl); err != nil {
		writeTemplateError(w, err, s)
		return
	}
	WriteJSON(w, http.StatusCreated, &tmpl)
}

// handleTemplateItem handles GET/PUT/DELETE /api/templates/{id}.
func (s *Server) handleTemplateItem(w http.ResponseWriter, r *http.Request, templateID string) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		tmpl, err := s.app.TemplateService.Get(ctx, ac.FirmID, templateID)
		if err != nil {
			writeTemplateError(w, err, s)
			return
		}
		WriteJSON(w, http.StatusOK, tmpl)

	case http.MethodPut:
		var tmpl models.Template
		if !DecodeJSON(w, r, &tmpl) {
			return
		}
		tmpl.TemplateID = templateID
		tmpl.FirmID = ac.FirmID
		if tmpl.Name == "" || tmpl.Body == "" {
			WriteError(w, http.StatusBadRequest, "name and body are required")
			return
		}
		if err := s.app.TemplateService.Save(ctx, &tmpl); err != nil {
			writeTemplateError(w, err, s)
			return
		}
		WriteJSON(w, http.StatusOK, &tmpl)

	case http.MethodDelete:
		if err := s.app.TemplateService.Delete(ctx, ac.FirmID, templateID); err != nil {
			writeTemplateError(w, err, s)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleTemplateMatch handles POST /api/templates/match.
func (s *Server) handleTemplateMatch(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		MatterType string `json:"matter_type"`
		Summary    string `json:"summary"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	matches, err := s.app.TemplateService.Match(r.Context(), ac.FirmID, req.MatterType, req.Summary)
	if err != nil {
		s.logger.Error().Err(err).Str("firm_id", ac.FirmID).Msg("Template matching failed")
		WriteError(w, http.StatusInternalServerError, "template matching failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"matches": matches})
}

// writeTemplateError maps template service errors to HTTP statuses.
func writeTemplateError(w http.ResponseWriter, err error, s *Server) {
	switch {
	case errors.Is(err, templates.ErrGlobalTemplateImmutable):
		WriteError(w, http.StatusForbidden, "global templates are read-only")
	case errors.Is(err, interfaces.ErrNotFound):
		WriteError(w, http.StatusNotFound, "template not found")
	default:
		s.logger.Error().Err(err).Msg("Template operation failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
