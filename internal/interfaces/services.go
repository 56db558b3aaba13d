package interfaces

import (
	"context"

	"github.com/dictumlegal/dictum/internal/models"
)

// TemplateService manages templates and template matching.
type TemplateService interface {
	Get(ctx context.Context, firmID, templateID string) (*models.Template, error)
	Save(ctx context.Context, tmpl *models.Template) error
	Delete(ctx context.Context, firmID, templateID string) error
	List(ctx context.Context, firmID, matterType string) ([]*models.Template, error)
	// Match ranks visible templates against a matter type and case summary.
	Match(ctx context.Context, firmID, matterType, summary string) ([]models.TemplateMatch, error)
}

// LetterService orchestrates demand-letter generation and refinement.
type LetterService interface {
	Generate(ctx context.Context, req *GenerateRequest) (*models.DemandLetter, error)
	Refine(ctx context.Context, letter *models.DemandLetter, instruction, selection string) (*models.DemandLetter, error)
}

// GenerateRequest carries the inputs of a generation run.
type GenerateRequest struct {
	FirmID       string
	UserID       string
	Title        string
	MatterType   string
	TemplateID   string // optional; best match is used when empty
	SourceDocIDs []string
	Recipient    models.RecipientBlock
	Facts        models.LetterFacts
}

// ExportService renders letters to downloadable artifacts.
type ExportService interface {
	Export(ctx context.Context, letter *models.DemandLetter, requestedBy string) (*models.ExportRecord, error)
	Fetch(ctx context.Context, exportID string) (*models.ExportRecord, []byte, error)
	Delete(ctx context.Context, rec *models.ExportRecord) error
}
