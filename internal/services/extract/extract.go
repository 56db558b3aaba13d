// Package extract pulls plain text out of uploaded source documents so it
// can feed letter generation prompts.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
	"github.com/dictumlegal/dictum/internal/storage"
)

// Supported upload content types.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ErrUnsupportedType is returned for uploads that are neither PDF nor DOCX.
var ErrUnsupportedType = errors.New("unsupported document type")

// Service extracts text from uploaded documents and records the outcome
// on the document record.
type Service struct {
	docs     interfaces.DocumentStore
	blobs    storage.BlobStore
	logger   *common.Logger
	maxChars int
}

// NewService creates an extraction service. maxChars caps the extracted
// text kept per document so prompts stay within model context limits.
func NewService(docs interfaces.DocumentStore, blobs storage.BlobStore, logger *common.Logger, maxChars int) *Service {
	if maxChars <= 0 {
		maxChars = 50000
	}
	return &Service{
		docs:     docs,
		blobs:    blobs,
		logger:   logger,
		maxChars: maxChars,
	}
}

// Supported reports whether the content type and filename describe a
// document this service can extract.
func Supported(contentType, filename string) bool {
	switch normalizeType(contentType, filename) {
	case ContentTypePDF, ContentTypeDOCX:
		return true
	}
	return false
}

// normalizeType resolves the effective content type, falling back to the
// file extension when the declared type is generic.
func normalizeType(contentType, filename string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case ContentTypePDF, ContentTypeDOCX:
		return ct
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return ContentTypePDF
	case ".docx":
		return ContentTypeDOCX
	}
	return ct
}

// truncateText caps s at max bytes without splitting a UTF-8 sequence.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// ExtractText extracts plain text from raw document bytes.
func (s *Service) ExtractText(contentType, filename string, data []byte) (string, error) {
	switch normalizeType(contentType, filename) {
	case ContentTypePDF:
		return extractPDFText(data, s.maxChars)
	case ContentTypeDOCX:
		return extractDOCXText(data, s.maxChars)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
}

// Process fetches a document's bytes from the blob store, extracts its
// text, and persists the outcome on the record. Extraction failure is
// recorded on the document rather than returned, so uploads still succeed.
func (s *Service) Process(ctx context.Context, doc *models.SourceDocument) error {
	data, err := s.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		return fmt.Errorf("failed to fetch document blob: %w", err)
	}

	text, err := s.ExtractText(doc.ContentType, doc.Filename, data)
	if err != nil {
		doc.ExtractionStatus = models.ExtractionFailed
		doc.ExtractionError = err.Error()
		s.logger.Warn().Str("document", doc.DocumentID).Err(err).Msg("Text extraction failed")
	} else {
		doc.ExtractedText = text
		doc.ExtractionStatus = models.ExtractionDone
		doc.ExtractionError = ""
	}
	doc.ModifiedAt = time.Now()

	if err := s.docs.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to save extraction result: %w", err)
	}
	return nil
}

// CollectText loads the given documents concurrently and concatenates
// their extracted text, labelled per document, for prompt assembly.
// Documents outside the firm or without extracted text are skipped.
func (s *Service) CollectText(ctx context.Context, firmID string, docIDs []string) (string, error) {
	if len(docIDs) == 0 {
		return "", nil
	}

	texts := make([]string, len(docIDs))
	g, gctx := errgroup.WithContext(ctx)

	for i, id := range docIDs {
		g.Go(func() error {
			doc, err := s.docs.Get(gctx, id)
			if err != nil {
				return fmt.Errorf("source document %s: %w", id, err)
			}
			if doc.FirmID != firmID {
				return fmt.Errorf("source document %s: %w", id, interfaces.ErrNotFound)
			}
			if doc.ExtractionStatus == models.ExtractionDone && doc.ExtractedText != "" {
				texts[i] = fmt.Sprintf("--- %s ---\n%s", doc.Filename, doc.ExtractedText)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	var parts []string
	for _, t := range texts {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
