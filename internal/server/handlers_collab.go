package server

import (
	"net/http"

	"github.com/dictumlegal/dictum/internal/models"
)

// --- Collaboration handlers ---

// handleCollabToken handles POST /api/collab/token.
// A collab token is a short-lived credential scoped to one letter; the
// websocket endpoint accepts nothing else.
func (s *Server) handleCollabToken(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		LetterID string `json:"letter_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.LetterID == "" {
		WriteError(w, http.StatusBadRequest, "letter_id is required")
		return
	}

	letter, ok := s.loadLetterForRead(w, r, ac, req.LetterID)
	if !ok {
		return
	}
	if !letter.CanWrite(ac.UserID, ac.FirmID, ac.Role) {
		WriteError(w, http.StatusForbidden, "write access required to join an editing session")
		return
	}
	if letter.Status == models.StatusFinal {
		WriteError(w, http.StatusConflict, "letter is final")
		return
	}

	token, err := s.app.CollabTokens.Mint(ac.UserID, ac.FirmID, letter.LetterID)
	if err != nil {
		s.logger.Error().Err(err).Str("letter_id", letter.LetterID).Msg("Failed to mint collab token")
		WriteError(w, http.StatusInternalServerError, "failed to mint collab token")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"letter_id":  letter.LetterID,
		"expires_in": int(s.app.Config.Auth.GetCollabTokenExpiry().Seconds()),
	})
}

// handleCollabWS handles GET /api/collab/ws?token=... and upgrades to a
// websocket relay session for the letter named in the token.
func (s *Server) handleCollabWS(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		WriteError(w, http.StatusUnauthorized, "token query parameter is required")
		return
	}

	claims, err := s.app.CollabTokens.Validate(tokenString)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "invalid or expired collab token")
		return
	}

	// Join writes its own response on shutdown and after a successful
	// upgrade; an error here means the letter could not be loaded.
	if err := s.app.CollabHub.Join(w, r, claims.LetterID, claims.UserID); err != nil {
		s.logger.Warn().Err(err).Str("letter_id", claims.LetterID).Msg("Collab join failed")
		WriteError(w, http.StatusNotFound, "letter not found")
	}
}
