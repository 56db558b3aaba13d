package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
	"github.com/dictumlegal/dictum/internal/services/letters"
	"github.com/google/uuid"
)

// --- Letter handlers ---

// loadLetterForRead fetches a letter and enforces read access.
// A letter outside the caller's view renders as 404, not 403, so letter
// IDs leak nothing across firms.
func (s *Server) loadLetterForRead(w http.ResponseWriter, r *http.Request, ac *common.AuthContext, letterID string) (*models.DemandLetter, bool) {
	letter, err := s.app.Storage.LetterStore().Get(r.Context(), letterID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Error().Err(err).Str("letter_id", letterID).Msg("Failed to load letter")
		}
		WriteError(w, http.StatusNotFound, "letter not found")
		return nil, false
	}
	if !letter.CanRead(ac.UserID, ac.FirmID, ac.Role) {
		WriteError(w, http.StatusNotFound, "letter not found")
		return nil, false
	}
	return letter, true
}

// handleLetterCollection handles GET (list) and POST (create blank)
// on /api/letters.
func (s *Server) handleLetterCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleLetterList(w, r)
	case http.MethodPost:
		s.handleLetterCreate(w, r)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleLetterCreate handles POST /api/letters. Creates a blank draft
// without involving the LLM; generation lives at /api/letters/generate.
func (s *Server) handleLetterCreate(w http.ResponseWriter, r *http.Request) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Title      string                `json:"title"`
		MatterType string                `json:"matter_type"`
		Recipient  models.RecipientBlock `json:"recipient"`
		Content    string                `json:"content"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		WriteError(w, http.StatusBadRequest, "title is required")
		return
	}

	now := time.Now()
	letter := &models.DemandLetter{
		LetterID:   uuid.New().String(),
		FirmID:     ac.FirmID,
		OwnerID:    ac.UserID,
		Title:      req.Title,
		MatterType: req.MatterType,
		Recipient:  req.Recipient,
		Content:    req.Content,
		Status:     models.StatusDraft,
		Visibility: models.VisibilityPrivate,
		Version:    1,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	if err := s.app.Storage.LetterStore().Save(r.Context(), letter); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save letter")
		WriteError(w, http.StatusInternalServerError, "failed to save letter")
		return
	}
	WriteJSON(w, http.StatusCreated, letter)
}

// handleLetterList handles GET /api/letters.
// Only letters the caller can read are returned.
func (s *Server) handleLetterList(w http.ResponseWriter, r *http.Request) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	all, err := s.app.Storage.LetterStore().ListByFirm(r.Context(), ac.FirmID)
	if err != nil {
		s.logger.Error().Err(err).Str("firm_id", ac.FirmID).Msg("Failed to list letters")
		WriteError(w, http.StatusInternalServerError, "failed to list letters")
		return
	}

	visible := make([]*models.DemandLetter, 0, len(all))
	for _, l := range all {
		if l.CanRead(ac.UserID, ac.FirmID, ac.Role) {
			visible = append(visible, l)
		}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"letters": visible})
}

// handleLetterGenerate handles POST /api/letters/generate.
func (s *Server) handleLetterGenerate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Title        string                `json:"title"`
		MatterType   string                `json:"matter_type"`
		TemplateID   string                `json:"template_id"`
		SourceDocIDs []string              `json:"source_doc_ids"`
		Recipient    models.RecipientBlock `json:"recipient"`
		Facts        models.LetterFacts    `json:"facts"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		WriteError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Facts.Claimant == "" {
		WriteError(w, http.StatusBadRequest, "facts.claimant is required")
		return
	}

	letter, err := s.app.LetterService.Generate(r.Context(), &interfaces.GenerateRequest{
		FirmID:       ac.FirmID,
		UserID:       ac.UserID,
		Title:        req.Title,
		MatterType:   req.MatterType,
		TemplateID:   req.TemplateID,
		SourceDocIDs: req.SourceDocIDs,
		Recipient:    req.Recipient,
		Facts:        req.Facts,
	})
	if err != nil {
		writeLetterError(w, err, s)
		return
	}
	WriteJSON(w, http.StatusCreated, letter)
}

// handleLetterItem handles GET/PUT/DELETE /api/letters/{id}.
func (s *Server) handleLetterItem(w http.ResponseWriter, r *http.Request, letterID string) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	letter, ok := s.loadLetterForRead(w, r, ac, letterID)
	if !ok {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, letter)

	case http.MethodPut:
		if !letter.CanWrite(ac.UserID, ac.FirmID, ac.Role) {
			WriteError(w, http.StatusForbidden, "write access required")
			return
		}
		if letter.Status == models.StatusFinal {
			WriteError(w, http.StatusConflict, "letter is final")
			return
		}
		var req struct {
			Title     string                 `json:"title"`
			Content   *string                `json:"content"`
			Recipient *models.RecipientBlock `json:"recipient"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		if req.Title != "" {
			letter.Title = req.Title
		}
		if req.Recipient != nil {
			letter.Recipient = *req.Recipient
		}
		if req.Content != nil {
			letter.Content = *req.Content
			letter.Version++
		}
		letter.ModifiedAt = time.Now()
		if err := s.app.Storage.LetterStore().Save(ctx, letter); err != nil {
			s.logger.Error().Err(err).Str("letter_id", letterID).Msg("Failed to save letter")
			WriteError(w, http.StatusInternalServerError, "failed to save letter")
			return
		}
		WriteJSON(w, http.StatusOK, letter)

	case http.MethodDelete:
		if letter.OwnerID != ac.UserID && !ac.IsAdmin() {
			WriteError(w, http.StatusForbidden, "only the owner or an admin may delete a letter")
			return
		}
		if err := s.app.Storage.LetterStore().Delete(ctx, letterID); err != nil {
			s.logger.Error().Err(err).Str("letter_id", letterID).Msg("Failed to delete letter")
			WriteError(w, http.StatusInternalServerError, "failed to delete letter")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleLetterRefine handles POST /api/letters/{id}/refine.
func (s *Server) handleLetterRefine(w http.ResponseWriter, r *http.Request, letterID string) {
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
	if !letter.CanWrite(ac.UserID, ac.FirmID, ac.Role) {
		WriteError(w, http.StatusForbidden, "write access required")
		return
	}

	var req struct {
		Instruction string `json:"instruction"`
		Selection   string `json:"selection"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Instruction == "" {
		WriteError(w, http.StatusBadRequest, "instruction is required")
		return
	}

	refined, err := s.app.LetterService.Refine(r.Context(), letter, req.Instruction, req.Selection)
	if err != nil {
		writeLetterError(w, err, s)
		return
	}
	WriteJSON(w, http.StatusOK, refined)
}

// handleLetterShare handles POST /api/letters/{id}/share.
func (s *Server) handleLetterShare(w http.ResponseWriter, r *http.Request, letterID string) {
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
	if letter.OwnerID != ac.UserID && !ac.IsAdmin() {
		WriteError(w, http.StatusForbidden, "only the owner or an admin may change sharing")
		return
	}

	var req struct {
		Visibility string   `json:"visibility"`
		SharedWith []string `json:"shared_with"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !models.ValidVisibility(req.Visibility) {
		WriteError(w, http.StatusBadRequest, "visibility must be 'private', 'shared', or 'firm'")
		return
	}

	ctx := r.Context()

	// Shared-with entries must be members of the same firm.
	if req.Visibility == models.VisibilityShared {
		for _, uid := range req.SharedWith {
			u, err := s.app.Storage.AccountStore().GetUser(ctx, uid)
			if err != nil || u.FirmID != ac.FirmID {
				WriteError(w, http.StatusBadRequest, "shared_with contains an unknown user")
				return
			}
		}
	} else {
		req.SharedWith = nil
	}

	letter.Visibility = req.Visibility
	letter.SharedWith = req.SharedWith
	letter.ModifiedAt = time.Now()
	if err := s.app.Storage.LetterStore().Save(ctx, letter); err != nil {
		s.logger.Error().Err(err).Str("letter_id", letterID).Msg("Failed to update sharing")
		WriteError(w, http.StatusInternalServerError, "failed to update sharing")
		return
	}
	WriteJSON(w, http.StatusOK, letter)
}

// handleLetterFinalize handles POST /api/letters/{id}/finalize.
// Finalizing is one-way; a final letter accepts no further edits.
func (s *Server) handleLetterFinalize(w http.ResponseWriter, r *http.Request, letterID string) {
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
	if !letter.CanWrite(ac.UserID, ac.FirmID, ac.Role) {
		WriteError(w, http.StatusForbidden, "write access required")
		return
	}
	if letter.Status == models.StatusFinal {
		WriteJSON(w, http.StatusOK, letter)
		return
	}

	letter.Status = models.StatusFinal
	letter.ModifiedAt = time.Now()
	if err := s.app.Storage.LetterStore().Save(r.Context(), letter); err != nil {
		s.logger.Error().Err(err).Str("letter_id", letterID).Msg("Failed to finalize letter")
		WriteError(w, http.StatusInternalServerError, "failed to finalize letter")
		return
	}

	s.logger.Info().Str("letter_id", letterID).Str("user_id", ac.UserID).Msg("Letter finalized")
	WriteJSON(w, http.StatusOK, letter)
}

// writeLetterError maps letter service errors to HTTP statuses.
func writeLetterError(w http.ResponseWriter, err error, s *Server) {
	switch {
	case errors.Is(err, letters.ErrLLMUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "letter generation is unavailable")
	case errors.Is(err, letters.ErrLetterFinal):
		WriteError(w, http.StatusConflict, "letter is final")
	case errors.Is(err, interfaces.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Letter operation failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
