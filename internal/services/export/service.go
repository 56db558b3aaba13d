// Package export renders demand letters to downloadable DOCX artifacts
// and manages their retention.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
	"github.com/dictumlegal/dictum/internal/storage"
)

// Service implements interfaces.ExportService.
type Service struct {
	exports interfaces.ExportStore
	blobs   storage.BlobStore
	logger  *common.Logger
}

func NewService(exports interfaces.ExportStore, blobs storage.BlobStore, logger *common.Logger) *Service {
	return &Service{
		exports: exports,
		blobs:   blobs,
		logger:  logger,
	}
}

// Export renders the letter to DOCX, stores the artifact in the blob
// store, and records it for download and retention.
func (s *Service) Export(ctx context.Context, letter *models.DemandLetter, requestedBy string) (*models.ExportRecord, error) {
	data, err := renderDOCX(letter)
	if err != nil {
		return nil, fmt.Errorf("failed to render letter: %w", err)
	}

	exportID := uuid.NewString()
	blobKey := fmt.Sprintf("exports/%s/%s/%s.docx", letter.FirmID, letter.LetterID, exportID)

	if err := s.blobs.Put(ctx, blobKey, data); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	rec := &models.ExportRecord{
		ExportID:    exportID,
		LetterID:    letter.LetterID,
		FirmID:      letter.FirmID,
		RequestedBy: requestedBy,
		Format:      "docx",
		BlobKey:     blobKey,
		Filename:    sanitizeFilename(letter.Title) + ".docx",
		Size:        int64(len(data)),
		CreatedAt:   time.Now(),
	}

	if err := s.exports.Save(ctx, rec); err != nil {
		// The blob is orphaned; the sweeper will not find it, so clean up now.
		if delErr := s.blobs.Delete(ctx, blobKey); delErr != nil {
			s.logger.Warn().Str("key", blobKey).Err(delErr).Msg("Failed to remove orphaned artifact")
		}
		return nil, fmt.Errorf("failed to record export: %w", err)
	}

	s.logger.Info().
		Str("export", exportID).
		Str("letter", letter.LetterID).
		Int64("bytes", rec.Size).
		Msg("Letter exported")

	return rec, nil
}

// Fetch returns the export record and the artifact bytes.
func (s *Service) Fetch(ctx context.Context, exportID string) (*models.ExportRecord, []byte, error) {
	rec, err := s.exports.Get(ctx, exportID)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.blobs.Get(ctx, rec.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch artifact %s: %w", exportID, err)
	}
	return rec, data, nil
}

// Delete removes an export's artifact and record.
func (s *Service) Delete(ctx context.Context, rec *models.ExportRecord) error {
	if err := s.blobs.Delete(ctx, rec.BlobKey); err != nil {
		return err
	}
	return s.exports.Delete(ctx, rec.ExportID)
}

var _ interfaces.ExportService = (*Service)(nil)
