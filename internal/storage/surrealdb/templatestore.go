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

// TemplateStore manages letter template records.
type TemplateStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewTemplateStore(db *surrealdb.DB, logger *common.Logger) *TemplateStore {
	return &TemplateStore{
		db:     db,
		logger: logger,
	}
}

func (s *TemplateStore) Get(ctx context.Context, templateID string) (*models.Template, error) {
	tmpl, err := surrealdb.Select[models.Template](ctx, s.db, surrealmodels.NewRecordID("template", templateID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("template %s: %w", templateID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select template: %w", err)
	}
	if tmpl == nil || tmpl.TemplateID == "" {
		return nil, fmt.Errorf("template %s: %w", templateID, interfaces.ErrNotFound)
	}
	return tmpl, nil
}

func (s *TemplateStore) Save(ctx context.Context, tmpl *models.Template) error {
	sql := "UPSERT type::record('template', $id) CONTENT $tmpl"
	vars := map[string]any{"id": tmpl.TemplateID, "tmpl": tmpl}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.Template](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to save template after retries: %w", err)
		}
	}
	return nil
}

func (s *TemplateStore) Delete(ctx context.Context, templateID string) error {
	_, err := surrealdb.Delete[models.Template](ctx, s.db, surrealmodels.NewRecordID("template", templateID))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

// ListVisible returns global templates plus the firm's own, newest first.
// An empty matterType returns all matter types.
func (s *TemplateStore) ListVisible(ctx context.Context, firmID, matterType string) ([]*models.Template, error) {
	sql := "SELECT * FROM template WHERE (firm_id = '' OR firm_id = $firm_id)"
	vars := map[string]any{"firm_id": firmID}

	if matterType != "" {
		sql += " AND matter_type = $matter_type"
		vars["matter_type"] = matterType
	}
	sql += " ORDER BY created_at DESC"

	results, err := surrealdb.Query[[]models.Template](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	var templates []*models.Template
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			templates = append(templates, &(*results)[0].Result[i])
		}
	}
	return templates, nil
}

func (s *TemplateStore) Close() error {
	return nil
}

var _ interfaces.TemplateStore = (*TemplateStore)(nil)
