// Package interfaces defines service contracts for Dictum
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/dictumlegal/dictum/internal/models"
)

// ErrNotFound is returned by stores when a record does not exist.
// Callers should test with errors.Is.
var ErrNotFound = errors.New("record not found")

// StorageManager coordinates all record stores backed by the document database.
type StorageManager interface {
	AccountStore() AccountStore
	TemplateStore() TemplateStore
	DocumentStore() DocumentStore
	LetterStore() LetterStore
	ExportStore() ExportStore

	// Lifecycle
	Close() error
}

// AccountStore manages users, firms, and system-level KV.
type AccountStore interface {
	// Users
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, userID string) error
	ListFirmUsers(ctx context.Context, firmID string) ([]*models.User, error)

	// Firms
	GetFirm(ctx context.Context, firmID string) (*models.Firm, error)
	GetFirmByInviteCode(ctx context.Context, code string) (*models.Firm, error)
	SaveFirm(ctx context.Context, firm *models.Firm) error

	// System key-value (non-user-scoped)
	GetSystemKV(ctx context.Context, key string) (string, error)
	SetSystemKV(ctx context.Context, key, value string) error

	Close() error
}

// TemplateStore manages letter templates (global and firm-scoped).
type TemplateStore interface {
	Get(ctx context.Context, templateID string) (*models.Template, error)
	Save(ctx context.Context, tmpl *models.Template) error
	Delete(ctx context.Context, templateID string) error
	// ListVisible returns global templates plus the firm's own,
	// optionally filtered by matter type.
	ListVisible(ctx context.Context, firmID, matterType string) ([]*models.Template, error)
	Close() error
}

// DocumentStore manages source document metadata and extracted text.
type DocumentStore interface {
	Get(ctx context.Context, documentID string) (*models.SourceDocument, error)
	Save(ctx context.Context, doc *models.SourceDocument) error
	Delete(ctx context.Context, documentID string) error
	ListByFirm(ctx context.Context, firmID, ownerID string) ([]*models.SourceDocument, error)
	Close() error
}

// LetterStore manages demand letters.
type LetterStore interface {
	Get(ctx context.Context, letterID string) (*models.DemandLetter, error)
	Save(ctx context.Context, letter *models.DemandLetter) error
	// UpdateSyncState writes only the collaborative sync fields so a
	// snapshot persist never overwrites concurrent content edits.
	UpdateSyncState(ctx context.Context, letterID string, state string, seq int64) error
	Delete(ctx context.Context, letterID string) error
	ListByFirm(ctx context.Context, firmID string) ([]*models.DemandLetter, error)
	Close() error
}

// ExportStore manages export artifact records.
type ExportStore interface {
	Get(ctx context.Context, exportID string) (*models.ExportRecord, error)
	Save(ctx context.Context, rec *models.ExportRecord) error
	Delete(ctx context.Context, exportID string) error
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.ExportRecord, error)
	Close() error
}
