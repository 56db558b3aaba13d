package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
)

// DocumentStore manages source document metadata. Raw file bytes live
// in the blob store; only the extracted text is kept here.
type DocumentStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewDocumentStore(db *surrealdb.DB, logger *common.Logger) *DocumentStore {
	return &DocumentStore{
		db:     db,
		logger: logger,
	}
}

func (s *DocumentStore) Get(ctx context.Context, documentID string) (*models.SourceDocument, error) {
	doc, err := surrealdb.Select[models.SourceDocument](ctx, s.db, surrealmodels.NewRecordID("document", documentID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("document %s: %w", documentID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select document: %w", err)
	}
	if doc == nil || doc.DocumentID == "" {
		return nil, fmt.Errorf("document %s: %w", documentID, interfaces.ErrNotFound)
	}
	return doc, nil
}

func (s *DocumentStore) Save(ctx context.Context, doc *models.SourceDocument) error {
	sql := "UPSERT type::record('document', $id) CONTENT $doc"
	vars := map[string]any{"id": doc.DocumentID, "doc": doc}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.SourceDocument](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to save document after retries: %w", err)
		}
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, documentID string) error {
	_, err := surrealdb.Delete[models.SourceDocument](ctx, s.db, surrealmodels.NewRecordID("document", documentID))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// ListByFirm returns the firm's documents, newest first. A non-empty
// ownerID narrows the listing to one uploader.
func (s *DocumentStore) ListByFirm(ctx context.Context, firmID, ownerID string) ([]*models.SourceDocument, error) {
	sql := "SELECT * FROM document WHERE firm_id = $firm_id"
	vars := map[string]any{"firm_id": firmID}

	if ownerID != "" {
		sql += " AND owner_id = $owner_id"
		vars["owner_id"] = ownerID
	}
	sql += " ORDER BY created_at DESC"

	results, err := surrealdb.Query[[]models.SourceDocument](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var docs []*models.SourceDocument
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			docs = append(docs, &(*results)[0].Result[i])
		}
	}
	return docs, nil
}

func (s *DocumentStore) Close() error {
	return nil
}

var _ interfaces.DocumentStore = (*DocumentStore)(nil)
