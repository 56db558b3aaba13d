package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
)

// LetterStore manages demand letter records.
type LetterStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewLetterStore(db *surrealdb.DB, logger *common.Logger) *LetterStore {
	return &LetterStore{
		db:     db,
		logger: logger,
	}
}

func (s *LetterStore) Get(ctx context.Context, letterID string) (*models.DemandLetter, error) {
	letter, err := surrealdb.Select[models.DemandLetter](ctx, s.db, surrealmodels.NewRecordID("letter", letterID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("letter %s: %w", letterID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select letter: %w", err)
	}
	if letter == nil || letter.LetterID == "" {
		return nil, fmt.Errorf("letter %s: %w", letterID, interfaces.ErrNotFound)
	}
	return letter, nil
}

func (s *LetterStore) Save(ctx context.Context, letter *models.DemandLetter) error {
	sql := "UPSERT type::record('letter', $id) CONTENT $letter"
	vars := map[string]any{"id": letter.LetterID, "letter": letter}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.DemandLetter](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to save letter after retries: %w", err)
		}
	}
	return nil
}

// UpdateSyncState touches only the sync fields so concurrent content
// saves are never overwritten by a snapshot persist.
func (s *LetterStore) UpdateSyncState(ctx context.Context, letterID string, state string, seq int64) error {
	sql := "UPDATE $rid SET sync_state = $state, sync_seq = $seq, modified_at = $now"
	vars := map[string]any{
		"rid":   surrealmodels.NewRecordID("letter", letterID),
		"state": state,
		"seq":   seq,
		"now":   time.Now(),
	}

	_, err := surrealdb.Query[[]models.DemandLetter](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to update letter sync state: %w", err)
	}
	return nil
}

func (s *LetterStore) Delete(ctx context.Context, letterID string) error {
	_, err := surrealdb.Delete[models.DemandLetter](ctx, s.db, surrealmodels.NewRecordID("letter", letterID))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete letter: %w", err)
	}
	return nil
}

// ListByFirm returns every letter in the firm, newest first. Visibility
// filtering is the caller's concern since it depends on who is asking.
func (s *LetterStore) ListByFirm(ctx context.Context, firmID string) ([]*models.DemandLetter, error) {
	sql := "SELECT * FROM letter WHERE firm_id = $firm_id ORDER BY modified_at DESC"
	vars := map[string]any{"firm_id": firmID}

	results, err := surrealdb.Query[[]models.DemandLetter](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list letters: %w", err)
	}

	var letters []*models.DemandLetter
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			letters = append(letters, &(*results)[0].Result[i])
		}
	}
	return letters, nil
}

func (s *LetterStore) Close() error {
	return nil
}

var _ interfaces.LetterStore = (*LetterStore)(nil)
