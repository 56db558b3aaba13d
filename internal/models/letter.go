package models

import "time"

// Letter visibility values.
const (
	VisibilityPrivate = "private"
	VisibilityShared  = "shared"
	VisibilityFirm    = "firm"
)

// Letter status values.
const (
	StatusDraft = "draft"
	StatusFinal = "final"
)

// RecipientBlock is the addressee of a demand letter.
type RecipientBlock struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

// LetterFacts are the structured case facts fed into generation.
type LetterFacts struct {
	Claimant     string `json:"claimant"`
	Respondent   string `json:"respondent"`
	IncidentDate string `json:"incident_date,omitempty"`
	DemandAmount string `json:"demand_amount,omitempty"`
	Deadline     string `json:"deadline,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

// DemandLetter is the primary artifact: a generated and collaboratively
// edited legal document. Version is bumped on every content write so
// clients can detect stale reads.
type DemandLetter struct {
	LetterID     string         `json:"letter_id"`
	FirmID       string         `json:"firm_id"`
	OwnerID      string         `json:"owner_id"`
	Title        string         `json:"title"`
	MatterType   string         `json:"matter_type,omitempty"`
	Recipient    RecipientBlock `json:"recipient"`
	Content      string         `json:"content"`
	Status       string         `json:"status"`
	Visibility   string         `json:"visibility"`
	SharedWith   []string       `json:"shared_with,omitempty"`
	TemplateName string         `json:"template_name,omitempty"`
	SourceDocIDs []string       `json:"source_doc_ids,omitempty"`
	Version      int            `json:"version"`
	SyncState    string         `json:"sync_state,omitempty"` // base64 CRDT snapshot from the collab relay
	SyncSeq      int64          `json:"sync_seq,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ModifiedAt   time.Time      `json:"modified_at"`
}

// CanRead reports whether the given user may view the letter.
// Firm admins can always read letters within their firm.
func (l *DemandLetter) CanRead(userID, firmID, role string) bool {
	if l.FirmID != firmID {
		return false
	}
	if l.OwnerID == userID || role == RoleAdmin {
		return true
	}
	switch l.Visibility {
	case VisibilityFirm:
		return true
	case VisibilityShared:
		for _, id := range l.SharedWith {
			if id == userID {
				return true
			}
		}
	}
	return false
}

// CanWrite reports whether the given user may modify the letter.
// Owners, shared editors, and firm admins may write; firm-wide visibility
// grants read only.
func (l *DemandLetter) CanWrite(userID, firmID, role string) bool {
	if l.FirmID != firmID {
		return false
	}
	if l.OwnerID == userID || role == RoleAdmin {
		return true
	}
	if l.Visibility == VisibilityShared {
		for _, id := range l.SharedWith {
			if id == userID {
				return true
			}
		}
	}
	return false
}

// ValidVisibility reports whether v is a recognized visibility value.
func ValidVisibility(v string) bool {
	switch v {
	case VisibilityPrivate, VisibilityShared, VisibilityFirm:
		return true
	}
	return false
}
