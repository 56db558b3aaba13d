package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
)

// AccountStore manages users, firms, and system KV records.
type AccountStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewAccountStore(db *surrealdb.DB, logger *common.Logger) *AccountStore {
	return &AccountStore{
		db:     db,
		logger: logger,
	}
}

func (s *AccountStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := surrealdb.Select[models.User](ctx, s.db, surrealmodels.NewRecordID("user", userID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("user %s: %w", userID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select user: %w", err)
	}
	if user == nil || user.UserID == "" {
		return nil, fmt.Errorf("user %s: %w", userID, interfaces.ErrNotFound)
	}
	return user, nil
}

func (s *AccountStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	sql := "SELECT * FROM user WHERE email = $email LIMIT 1"
	vars := map[string]any{"email": email}

	results, err := surrealdb.Query[[]models.User](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}

	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}
	return nil, fmt.Errorf("user with email %s: %w", email, interfaces.ErrNotFound)
}

func (s *AccountStore) SaveUser(ctx context.Context, user *models.User) error {
	sql := "UPSERT type::record('user', $id) CONTENT $user"
	vars := map[string]any{"id": user.UserID, "user": user}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.User](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to save user after retries: %w", err)
		}
	}
	return nil
}

func (s *AccountStore) DeleteUser(ctx context.Context, userID string) error {
	_, err := surrealdb.Delete[models.User](ctx, s.db, surrealmodels.NewRecordID("user", userID))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (s *AccountStore) ListFirmUsers(ctx context.Context, firmID string) ([]*models.User, error) {
	sql := "SELECT * FROM user WHERE firm_id = $firm_id ORDER BY created_at ASC"
	vars := map[string]any{"firm_id": firmID}

	results, err := surrealdb.Query[[]models.User](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list firm users: %w", err)
	}

	var users []*models.User
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			users = append(users, &(*results)[0].Result[i])
		}
	}
	return users, nil
}

func (s *AccountStore) GetFirm(ctx context.Context, firmID string) (*models.Firm, error) {
	firm, err := surrealdb.Select[models.Firm](ctx, s.db, surrealmodels.NewRecordID("firm", firmID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("firm %s: %w", firmID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select firm: %w", err)
	}
	if firm == nil || firm.FirmID == "" {
		return nil, fmt.Errorf("firm %s: %w", firmID, interfaces.ErrNotFound)
	}
	return firm, nil
}

func (s *AccountStore) GetFirmByInviteCode(ctx context.Context, code string) (*models.Firm, error) {
	sql := "SELECT * FROM firm WHERE invite_code = $code LIMIT 1"
	vars := map[string]any{"code": code}

	results, err := surrealdb.Query[[]models.Firm](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query firm by invite code: %w", err)
	}

	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}
	return nil, fmt.Errorf("firm with invite code: %w", interfaces.ErrNotFound)
}

func (s *AccountStore) SaveFirm(ctx context.Context, firm *models.Firm) error {
	sql := "UPSERT type::record('firm', $id) CONTENT $firm"
	vars := map[string]any{"id": firm.FirmID, "firm": firm}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.Firm](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to save firm after retries: %w", err)
		}
	}
	return nil
}

// systemKV is the storage shape for system_kv records.
type systemKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *AccountStore) GetSystemKV(ctx context.Context, key string) (string, error) {
	kv, err := surrealdb.Select[systemKV](ctx, s.db, surrealmodels.NewRecordID("system_kv", key))
	if err != nil {
		if isNotFoundError(err) {
			return "", fmt.Errorf("system kv %s: %w", key, interfaces.ErrNotFound)
		}
		return "", fmt.Errorf("failed to select system kv: %w", err)
	}
	if kv == nil || kv.Key == "" {
		return "", fmt.Errorf("system kv %s: %w", key, interfaces.ErrNotFound)
	}
	return kv.Value, nil
}

func (s *AccountStore) SetSystemKV(ctx context.Context, key, value string) error {
	sql := "UPSERT type::record('system_kv', $id) CONTENT $kv"
	vars := map[string]any{"id": key, "kv": systemKV{Key: key, Value: value}}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]systemKV](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		if attempt == 3 {
			return fmt.Errorf("failed to set system kv after retries: %w", err)
		}
	}
	return nil
}

func (s *AccountStore) Close() error {
	return nil
}

var _ interfaces.AccountStore = (*AccountStore)(nil)
