package models

import "time"

// Extraction status values for source documents.
const (
	ExtractionPending = "pending"
	ExtractionDone    = "done"
	ExtractionFailed  = "failed"
)

// SourceDocument is an uploaded PDF/DOCX whose extracted text feeds the
// generation prompt. The raw bytes live in the blob store under BlobKey;
// only metadata and extracted text are stored in the database.
type SourceDocument struct {
	DocumentID       string    `json:"document_id"`
	FirmID           string    `json:"firm_id"`
	OwnerID          string    `json:"owner_id"`
	Filename         string    `json:"filename"`
	ContentType      string    `json:"content_type"`
	Size             int64     `json:"size"`
	BlobKey          string    `json:"blob_key"`
	ExtractedText    string    `json:"extracted_text,omitempty"`
	ExtractionStatus string    `json:"extraction_status"`
	ExtractionError  string    `json:"extraction_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ModifiedAt       time.Time `json:"modified_at"`
}
