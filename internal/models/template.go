package models

import "time"

// Matter types recognized by template matching. Templates may declare other
// values; these are the ones the built-in library ships with.
const (
	MatterPersonalInjury = "personal_injury"
	MatterPropertyDamage = "property_damage"
	MatterContractBreach = "contract_breach"
	MatterUnpaidInvoice  = "unpaid_invoice"
)

// Template is a reusable demand-letter skeleton. FirmID is empty for
// global/built-in templates, which are readable by every firm but immutable.
type Template struct {
	TemplateID string    `json:"template_id"`
	FirmID     string    `json:"firm_id,omitempty"`
	Name       string    `json:"name"`
	MatterType string    `json:"matter_type"`
	Body       string    `json:"body"` // contains {{placeholder}} slots
	Tags       []string  `json:"tags,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// IsGlobal reports whether the template belongs to the shared library
// rather than a single firm.
func (t *Template) IsGlobal() bool {
	return t.FirmID == ""
}

// TemplateMatch pairs a template with its matching score against a case
// summary. Higher is better.
type TemplateMatch struct {
	Template *Template `json:"template"`
	Score    float64   `json:"score"`
}
