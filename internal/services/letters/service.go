// Package letters orchestrates demand-letter generation and refinement.
package letters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
	"github.com/dictumlegal/dictum/internal/services/extract"
)

// ErrLLMUnavailable is returned when no Gemini client is configured.
// Handlers map this to a 503 so the rest of the API keeps working.
var ErrLLMUnavailable = errors.New("letter generation is unavailable: no LLM configured")

// ErrLetterFinal is returned on attempts to refine a finalized letter.
var ErrLetterFinal = errors.New("letter is final and cannot be refined")

// Service implements interfaces.LetterService.
type Service struct {
	letters        interfaces.LetterStore
	accounts       interfaces.AccountStore
	templates      interfaces.TemplateService
	extractor      *extract.Service
	gemini         interfaces.GeminiClient
	logger         *common.Logger
	maxPromptChars int
}

// NewService creates the letter service. gemini may be nil, in which
// case Generate and Refine fail with ErrLLMUnavailable while reads and
// manual edits stay available.
func NewService(
	letters interfaces.LetterStore,
	accounts interfaces.AccountStore,
	templates interfaces.TemplateService,
	extractor *extract.Service,
	gemini interfaces.GeminiClient,
	logger *common.Logger,
	maxPromptChars int,
) *Service {
	if maxPromptChars <= 0 {
		maxPromptChars = 200000
	}
	return &Service{
		letters:        letters,
		accounts:       accounts,
		templates:      templates,
		extractor:      extractor,
		gemini:         gemini,
		logger:         logger,
		maxPromptChars: maxPromptChars,
	}
}

// Generate drafts a new letter: resolve a template (pinned or best
// match), gather extracted source text, prompt the model, and persist
// the draft as a private letter owned by the requester.
func (s *Service) Generate(ctx context.Context, req *interfaces.GenerateRequest) (*models.DemandLetter, error) {
	if s.gemini == nil {
		return nil, ErrLLMUnavailable
	}
	if req.Title == "" {
		return nil, fmt.Errorf("letter title is required")
	}
	if req.Facts.Claimant == "" {
		return nil, fmt.Errorf("claimant is required")
	}

	in := &generationInputs{
		MatterType: req.MatterType,
		Recipient:  req.Recipient,
		Facts:      req.Facts,
	}

	if firm, err := s.accounts.GetFirm(ctx, req.FirmID); err == nil {
		in.FirmName = firm.Name
	}

	tmpl, err := s.resolveTemplate(ctx, req)
	if err != nil {
		return nil, err
	}
	if tmpl != nil {
		in.TemplateName = tmpl.Name
		in.TemplateBody = tmpl.Body
	}

	sourceText, err := s.extractor.CollectText(ctx, req.FirmID, req.SourceDocIDs)
	if err != nil {
		return nil, err
	}
	in.SourceText = sourceText

	prompt := buildGenerationPrompt(in)
	if len(prompt) > s.maxPromptChars {
		prompt = prompt[:s.maxPromptChars]
	}

	content, err := s.gemini.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	now := time.Now()
	letter := &models.DemandLetter{
		LetterID:     uuid.NewString(),
		FirmID:       req.FirmID,
		OwnerID:      req.UserID,
		Title:        req.Title,
		MatterType:   req.MatterType,
		Recipient:    req.Recipient,
		Content:      content,
		Status:       models.StatusDraft,
		Visibility:   models.VisibilityPrivate,
		TemplateName: in.TemplateName,
		SourceDocIDs: req.SourceDocIDs,
		Version:      1,
		CreatedAt:    now,
		ModifiedAt:   now,
	}

	if err := s.letters.Save(ctx, letter); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("letter", letter.LetterID).
		Str("firm", letter.FirmID).
		Str("template", letter.TemplateName).
		Int("source_docs", len(req.SourceDocIDs)).
		Msg("Letter generated")

	return letter, nil
}

// resolveTemplate returns the pinned template when the request names
// one, otherwise the best match for the matter and summary. A nil
// result means free-form generation.
func (s *Service) resolveTemplate(ctx context.Context, req *interfaces.GenerateRequest) (*models.Template, error) {
	if req.TemplateID != "" {
		return s.templates.Get(ctx, req.FirmID, req.TemplateID)
	}

	matches, err := s.templates.Match(ctx, req.FirmID, req.MatterType, req.Facts.Summary)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0].Template, nil
}

// Refine rewrites a draft per the instruction. A non-empty selection
// limits the change to that passage. The caller has already checked
// write access; the letter must still be a draft.
func (s *Service) Refine(ctx context.Context, letter *models.DemandLetter, instruction, selection string) (*models.DemandLetter, error) {
	if s.gemini == nil {
		return nil, ErrLLMUnavailable
	}
	if instruction == "" {
		return nil, fmt.Errorf("refine instruction is required")
	}
	if letter.Status == models.StatusFinal {
		return nil, ErrLetterFinal
	}

	prompt := buildRefinePrompt(letter.Content, instruction, selection)
	if len(prompt) > s.maxPromptChars {
		prompt = prompt[:s.maxPromptChars]
	}

	content, err := s.gemini.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("refinement failed: %w", err)
	}

	letter.Content = content
	letter.Version++
	letter.ModifiedAt = time.Now()

	if err := s.letters.Save(ctx, letter); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("letter", letter.LetterID).
		Int("version", letter.Version).
		Msg("Letter refined")

	return letter, nil
}

var _ interfaces.LetterService = (*Service)(nil)
