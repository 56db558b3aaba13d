package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
)

// ExportStore manages export artifact records.
type ExportStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewExportStore(db *surrealdb.DB, logger *common.Logger) *ExportStore {
	return &ExportStore{
		db:     db,
		logger: logger,
	}
}

func (s *ExportStore) Get(ctx context.Context, exportID string) (*models.ExportRecord, error) {
	rec, err := surrealdb.Select[models.ExportRecord](ctx, s.db, surrealmodels.NewRecordID("export", exportID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("export %s: %w", exportID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select export: %w", err)
	}
	if rec == nil || rec.ExportID == "" {
		return nil, fmt.Errorf("export %s: %w", exportID, interfaces.ErrNotFound)
	}
	return rec, nil
}

func (s *ExportStore) Save(ctx context.Context, rec *models.ExportRecord) error {
	sql := "UPSERT type::record('export', $id) CONTENT $rec"
	vars := map[string]any{"id": rec.ExportID, "rec": rec}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.ExportRecord](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to save export after retries: %w", err)
		}
	}
	return nil
}

func (s *ExportStore) Delete(ctx context.Context, exportID string) error {
	_, err := surrealdb.Delete[models.ExportRecord](ctx, s.db, surrealmodels.NewRecordID("export", exportID))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete export: %w", err)
	}
	return nil
}

// ListOlderThan returns export records created before the cutoff, used
// by the retention sweeper.
func (s *ExportStore) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.ExportRecord, error) {
	sql := "SELECT * FROM export WHERE created_at < $cutoff"
	vars := map[string]any{"cutoff": cutoff}

	results, err := surrealdb.Query[[]models.ExportRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}

	var recs []*models.ExportRecord
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			recs = append(recs, &(*results)[0].Result[i])
		}
	}
	return recs, nil
}

func (s *ExportStore) Close() error {
	return nil
}

var _ interfaces.ExportStore = (*ExportStore)(nil)
