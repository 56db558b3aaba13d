package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
	"github.com/dictumlegal/dictum/internal/services/extract"
	"github.com/google/uuid"
)

// --- Source document handlers ---

// handleDocumentUpload handles POST /api/documents (multipart form, field "file").
// Text extraction runs inline; a failed extraction is recorded on the
// document but does not fail the upload.
func (s *Server) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	maxBytes := s.app.Config.Letters.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !extract.Supported(contentType, header.Filename) {
		WriteError(w, http.StatusUnsupportedMediaType, "only PDF and DOCX documents are supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", maxBytes))
		return
	}

	ctx := r.Context()
	now := time.Now()
	doc := &models.SourceDocument{
		DocumentID:       uuid.New().String(),
		FirmID:           ac.FirmID,
		OwnerID:          ac.UserID,
		Filename:         header.Filename,
		ContentType:      contentType,
		Size:             int64(len(data)),
		BlobKey:          fmt.Sprintf("uploads/%s/%s", ac.FirmID, uuid.New().String()),
		ExtractionStatus: models.ExtractionPending,
		CreatedAt:        now,
		ModifiedAt:       now,
	}

	if err := s.app.Blobs.Put(ctx, doc.BlobKey, data); err != nil {
		s.logger.Error().Err(err).Str("blob_key", doc.BlobKey).Msg("Failed to store upload")
		WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	if err := s.app.Storage.DocumentStore().Save(ctx, doc); err != nil {
		s.app.Blobs.Delete(ctx, doc.BlobKey)
		s.logger.Error().Err(err).Str("document_id", doc.DocumentID).Msg("Failed to save document")
		WriteError(w, http.StatusInternalServerError, "failed to save document")
		return
	}

	if err := s.app.ExtractService.Process(ctx, doc); err != nil {
		s.logger.Error().Err(err).Str("document_id", doc.DocumentID).Msg("Text extraction failed")
	}

	WriteJSON(w, http.StatusCreated, doc)
}

// handleDocumentList handles GET /api/documents?owner=me.
func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	ownerID := ""
	if r.URL.Query().Get("owner") == "me" {
		ownerID = ac.UserID
	}

	docs, err := s.app.Storage.DocumentStore().ListByFirm(r.Context(), ac.FirmID, ownerID)
	if err != nil {
		s.logger.Error().Err(err).Str("firm_id", ac.FirmID).Msg("Failed to list documents")
		WriteError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// loadDocument fetches a document and enforces firm scoping. Documents
// outside the caller's firm render as 404.
func (s *Server) loadDocument(w http.ResponseWriter, r *http.Request, ac *common.AuthContext, documentID string) (*models.SourceDocument, bool) {
	doc, err := s.app.Storage.DocumentStore().Get(r.Context(), documentID)
	if err != nil || doc.FirmID != ac.FirmID {
		if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Error().Err(err).Str("document_id", documentID).Msg("Failed to load document")
		}
		WriteError(w, http.StatusNotFound, "document not found")
		return nil, false
	}
	return doc, true
}

// handleDocumentItem handles GET/DELETE /api/documents/{id}.
func (s *Server) handleDocumentItem(w http.ResponseWriter, r *http.Request, documentID string) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	doc, ok := s.loadDocument(w, r, ac, documentID)
	if !ok {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, doc)

	case http.MethodDelete:
		if doc.OwnerID != ac.UserID && !ac.IsAdmin() {
			WriteError(w, http.StatusForbidden, "only the owner or an admin may delete a document")
			return
		}
		if err := s.app.Blobs.Delete(ctx, doc.BlobKey); err != nil {
			s.logger.Warn().Err(err).Str("blob_key", doc.BlobKey).Msg("Failed to delete document blob")
		}
		if err := s.app.Storage.DocumentStore().Delete(ctx, documentID); err != nil {
			s.logger.Error().Err(err).Str("document_id", documentID).Msg("Failed to delete document")
			WriteError(w, http.StatusInternalServerError, "failed to delete document")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodDelete)
	}
}

// handleDocumentText handles GET /api/documents/{id}/text.
func (s *Server) handleDocumentText(w http.ResponseWriter, r *http.Request, documentID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	doc, ok := s.loadDocument(w, r, ac, documentID)
	if !ok {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"document_id":       doc.DocumentID,
		"extraction_status": doc.ExtractionStatus,
		"extraction_error":  doc.ExtractionError,
		"text":              doc.ExtractedText,
	})
}

// handleDocumentDownload handles GET /api/documents/{id}/download.
// Streams the original upload from the blob store.
func (s *Server) handleDocumentDownload(w http.ResponseWriter, r *http.Request, documentID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	doc, ok := s.loadDocument(w, r, ac, documentID)
	if !ok {
		return
	}

	reader, err := s.app.Blobs.GetReader(r.Context(), doc.BlobKey)
	if err != nil {
		s.logger.Error().Err(err).Str("blob_key", doc.BlobKey).Msg("Failed to open document blob")
		WriteError(w, http.StatusNotFound, "document content not found")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", doc.Size))
	io.Copy(w, reader)
}
