package models

import "time"

// ExportRecord tracks a rendered artifact stored in the blob store.
// Artifacts are swept by the retention sweeper after Exports.MaxAge.
type ExportRecord struct {
	ExportID    string    `json:"export_id"`
	LetterID    string    `json:"letter_id"`
	FirmID      string    `json:"firm_id"`
	RequestedBy string    `json:"requested_by"`
	Format      string    `json:"format"`
	BlobKey     string    `json:"blob_key"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}
