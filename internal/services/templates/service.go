// Package templates manages the demand-letter template library and
// template matching.
package templates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
)

// ErrGlobalTemplateImmutable is returned on attempts to modify or delete
// a built-in global template.
var ErrGlobalTemplateImmutable = errors.New("global templates are read-only")

// Service implements interfaces.TemplateService.
type Service struct {
	store  interfaces.TemplateStore
	logger *common.Logger
}

func NewService(store interfaces.TemplateStore, logger *common.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Get returns a template visible to the firm: its own or a global one.
// Other firms' templates are reported as not found.
func (s *Service) Get(ctx context.Context, firmID, templateID string) (*models.Template, error) {
	tmpl, err := s.store.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsGlobal() && tmpl.FirmID != firmID {
		return nil, fmt.Errorf("template %s: %w", templateID, interfaces.ErrNotFound)
	}
	return tmpl, nil
}

// Save creates or updates a firm-scoped template. Global templates
// cannot be written through this path.
func (s *Service) Save(ctx context.Context, tmpl *models.Template) error {
	if tmpl.FirmID == "" {
		return ErrGlobalTemplateImmutable
	}
	if tmpl.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if tmpl.Body == "" {
		return fmt.Errorf("template body is required")
	}

	now := time.Now()
	if tmpl.TemplateID == "" {
		tmpl.TemplateID = uuid.NewString()
		tmpl.CreatedAt = now
	} else {
		existing, err := s.store.Get(ctx, tmpl.TemplateID)
		if err == nil {
			if existing.IsGlobal() {
				return ErrGlobalTemplateImmutable
			}
			if existing.FirmID != tmpl.FirmID {
				return fmt.Errorf("template %s: %w", tmpl.TemplateID, interfaces.ErrNotFound)
			}
			tmpl.CreatedAt = existing.CreatedAt
			if tmpl.CreatedBy == "" {
				tmpl.CreatedBy = existing.CreatedBy
			}
		} else if !errors.Is(err, interfaces.ErrNotFound) {
			return err
		} else if tmpl.CreatedAt.IsZero() {
			tmpl.CreatedAt = now
		}
	}
	tmpl.ModifiedAt = now

	return s.store.Save(ctx, tmpl)
}

// Delete removes a firm's template. Global templates cannot be deleted.
func (s *Service) Delete(ctx context.Context, firmID, templateID string) error {
	tmpl, err := s.store.Get(ctx, templateID)
	if err != nil {
		return err
	}
	if tmpl.IsGlobal() {
		return ErrGlobalTemplateImmutable
	}
	if tmpl.FirmID != firmID {
		return fmt.Errorf("template %s: %w", templateID, interfaces.ErrNotFound)
	}
	return s.store.Delete(ctx, templateID)
}

// List returns globals plus the firm's templates, optionally filtered
// by matter type.
func (s *Service) List(ctx context.Context, firmID, matterType string) ([]*models.Template, error) {
	return s.store.ListVisible(ctx, firmID, matterType)
}

// Match ranks visible templates against a matter type and case summary.
// Matter type agreement dominates; tag and name keyword overlap with the
// summary break ties. Templates scoring zero are omitted.
func (s *Service) Match(ctx context.Context, firmID, matterType, summary string) ([]models.TemplateMatch, error) {
	visible, err := s.store.ListVisible(ctx, firmID, "")
	if err != nil {
		return nil, err
	}

	summaryLower := strings.ToLower(summary)
	var matches []models.TemplateMatch

	for _, tmpl := range visible {
		score := scoreTemplate(tmpl, matterType, summaryLower)
		if score > 0 {
			matches = append(matches, models.TemplateMatch{Template: tmpl, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		// Firm templates outrank globals at equal score
		return !matches[i].Template.IsGlobal() && matches[j].Template.IsGlobal()
	})

	return matches, nil
}

// scoreTemplate computes the match score of one template.
func scoreTemplate(tmpl *models.Template, matterType, summaryLower string) float64 {
	var score float64

	if matterType != "" && tmpl.MatterType == matterType {
		score += 5
	}

	if summaryLower != "" {
		for _, tag := range tmpl.Tags {
			if tag != "" && strings.Contains(summaryLower, strings.ToLower(tag)) {
				score += 2
			}
		}
		for _, word := range strings.Fields(strings.ToLower(tmpl.Name)) {
			if len(word) > 3 && strings.Contains(summaryLower, word) {
				score++
			}
		}
	}

	return score
}

var _ interfaces.TemplateService = (*Service)(nil)
