package letters

import (
	"fmt"
	"strings"
	"time"

	"github.com/dictumlegal/dictum/internal/models"
)

// fillTemplate substitutes {{placeholder}} slots in a template body with
// known values. Unknown placeholders are left in place for the model to
// resolve from the case material.
func fillTemplate(body string, req *generationInputs) string {
	replacements := map[string]string{
		"{{date}}":              time.Now().Format("2 January 2006"),
		"{{recipient_name}}":    req.Recipient.Name,
		"{{recipient_company}}": req.Recipient.Company,
		"{{recipient_address}}": req.Recipient.Address,
		"{{claimant}}":          req.Facts.Claimant,
		"{{respondent}}":        req.Facts.Respondent,
		"{{incident_date}}":     req.Facts.IncidentDate,
		"{{demand_amount}}":     req.Facts.DemandAmount,
		"{{deadline}}":          req.Facts.Deadline,
		"{{summary}}":           req.Facts.Summary,
		"{{firm_name}}":         req.FirmName,
	}

	for placeholder, value := range replacements {
		if value != "" {
			body = strings.ReplaceAll(body, placeholder, value)
		}
	}
	return body
}

// generationInputs bundles everything the prompt builder needs.
type generationInputs struct {
	FirmName     string
	MatterType   string
	Recipient    models.RecipientBlock
	Facts        models.LetterFacts
	TemplateName string
	TemplateBody string
	SourceText   string
}

// buildGenerationPrompt assembles the full generation prompt: role
// instructions, the pre-filled template skeleton, structured case facts,
// and extracted source document text.
func buildGenerationPrompt(in *generationInputs) string {
	var sb strings.Builder

	sb.WriteString(`You are drafting a formal demand letter on behalf of a law firm. Produce only the letter text, with no preamble, commentary, or markdown formatting. Keep the tone firm and professional. Resolve any remaining {{placeholder}} slots from the case material; if a value is genuinely unknown, write a sensible neutral phrase instead of leaving the placeholder.

`)

	if in.TemplateBody != "" {
		sb.WriteString("Use this letter skeleton as the structural basis:\n\n")
		sb.WriteString(fillTemplate(in.TemplateBody, in))
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Case facts\n")
	writeFact(&sb, "Matter type", in.MatterType)
	writeFact(&sb, "Claimant", in.Facts.Claimant)
	writeFact(&sb, "Respondent", in.Facts.Respondent)
	writeFact(&sb, "Recipient", formatRecipient(in.Recipient))
	writeFact(&sb, "Incident date", in.Facts.IncidentDate)
	writeFact(&sb, "Demand amount", in.Facts.DemandAmount)
	writeFact(&sb, "Payment deadline", in.Facts.Deadline)
	writeFact(&sb, "Summary", in.Facts.Summary)

	if in.SourceText != "" {
		sb.WriteString("\n## Source documents\n")
		sb.WriteString("Ground the letter's factual assertions in the following extracted material:\n\n")
		sb.WriteString(in.SourceText)
		sb.WriteString("\n")
	}

	return sb.String()
}

// buildRefinePrompt assembles the prompt for refining an existing draft.
// When selection is non-empty only that passage should change.
func buildRefinePrompt(content, instruction, selection string) string {
	var sb strings.Builder

	sb.WriteString(`You are revising a demand letter draft for a law firm. Apply the instruction and return the complete revised letter text, with no preamble, commentary, or markdown formatting.

`)
	sb.WriteString("## Current draft\n")
	sb.WriteString(content)
	sb.WriteString("\n\n## Instruction\n")
	sb.WriteString(instruction)

	if selection != "" {
		sb.WriteString("\n\n## Scope\nApply the instruction only to this passage, leaving the rest of the letter unchanged:\n")
		sb.WriteString(selection)
	}

	return sb.String()
}

func writeFact(sb *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(sb, "- %s: %s\n", label, value)
	}
}

func formatRecipient(r models.RecipientBlock) string {
	parts := []string{r.Name}
	if r.Company != "" {
		parts = append(parts, r.Company)
	}
	if r.Address != "" {
		parts = append(parts, r.Address)
	}
	return strings.Join(parts, ", ")
}
