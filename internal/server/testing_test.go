package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dictumlegal/dictum/internal/app"
	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
	"github.com/dictumlegal/dictum/internal/services/collab"
	"github.com/dictumlegal/dictum/internal/services/export"
	"github.com/dictumlegal/dictum/internal/services/extract"
	"github.com/dictumlegal/dictum/internal/services/letters"
	"github.com/dictumlegal/dictum/internal/services/templates"
	"github.com/dictumlegal/dictum/internal/storage"
)

// memStorage is an in-memory StorageManager for handler tests.
type memStorage struct {
	mu      sync.Mutex
	users   map[string]*models.User
	firms   map[string]*models.Firm
	kv      map[string]string
	tmpls   map[string]*models.Template
	docs    map[string]*models.SourceDocument
	letters map[string]*models.DemandLetter
	exports map[string]*models.ExportRecord
}

func newMemStorage() *memStorage {
	return &memStorage{
		users:   make(map[string]*models.User),
		firms:   make(map[string]*models.Firm),
		kv:      make(map[string]string),
		tmpls:   make(map[string]*models.Template),
		docs:    make(map[string]*models.SourceDocument),
		letters: make(map[string]*models.DemandLetter),
		exports: make(map[string]*models.ExportRecord),
	}
}

func (m *memStorage) AccountStore() interfaces.AccountStore   { return m }
func (m *memStorage) TemplateStore() interfaces.TemplateStore { return (*memTemplates)(m) }
func (m *memStorage) DocumentStore() interfaces.DocumentStore { return (*memDocuments)(m) }
func (m *memStorage) LetterStore() interfaces.LetterStore     { return (*memLetters)(m) }
func (m *memStorage) ExportStore() interfaces.ExportStore     { return (*memExports)(m) }
func (m *memStorage) Close() error                            { return nil }

// --- AccountStore ---

func (m *memStorage) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memStorage) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *memStorage) SaveUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.UserID] = &cp
	return nil
}

func (m *memStorage) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memStorage) ListFirmUsers(_ context.Context, firmID string) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.User
	for _, u := range m.users {
		if u.FirmID == firmID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStorage) GetFirm(_ context.Context, id string) (*models.Firm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.firms[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memStorage) GetFirmByInviteCode(_ context.Context, code string) (*models.Firm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.firms {
		if f.InviteCode == code {
			cp := *f
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *memStorage) SaveFirm(_ context.Context, f *models.Firm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.firms[f.FirmID] = &cp
	return nil
}

func (m *memStorage) GetSystemKV(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kv[key], nil
}

func (m *memStorage) SetSystemKV(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

// --- TemplateStore ---

type memTemplates memStorage

func (m *memTemplates) Get(_ context.Context, id string) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tmpls[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memTemplates) Save(_ context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tmpls[t.TemplateID] = &cp
	return nil
}

func (m *memTemplates) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tmpls, id)
	return nil
}

func (m *memTemplates) ListVisible(_ context.Context, firmID, matterType string) ([]*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Template
	for _, t := range m.tmpls {
		if t.FirmID != "" && t.FirmID != firmID {
			continue
		}
		if matterType != "" && t.MatterType != matterType {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memTemplates) Close() error { return nil }

// --- DocumentStore ---

type memDocuments memStorage

func (m *memDocuments) Get(_ context.Context, id string) (*models.SourceDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memDocuments) Save(_ context.Context, d *models.SourceDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.docs[d.DocumentID] = &cp
	return nil
}

func (m *memDocuments) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memDocuments) ListByFirm(_ context.Context, firmID, ownerID string) ([]*models.SourceDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SourceDocument
	for _, d := range m.docs {
		if d.FirmID != firmID {
			continue
		}
		if ownerID != "" && d.OwnerID != ownerID {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memDocuments) Close() error { return nil }

// --- LetterStore ---

type memLetters memStorage

func (m *memLetters) Get(_ context.Context, id string) (*models.DemandLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.letters[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memLetters) Save(_ context.Context, l *models.DemandLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.letters[l.LetterID] = &cp
	return nil
}

func (m *memLetters) UpdateSyncState(_ context.Context, id string, state string, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.letters[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	l.SyncState = state
	l.SyncSeq = seq
	l.ModifiedAt = time.Now()
	return nil
}

func (m *memLetters) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.letters, id)
	return nil
}

func (m *memLetters) ListByFirm(_ context.Context, firmID string) ([]*models.DemandLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DemandLetter
	for _, l := range m.letters {
		if l.FirmID == firmID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memLetters) Close() error { return nil }

// --- ExportStore ---

type memExports memStorage

func (m *memExports) Get(_ context.Context, id string) (*models.ExportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.exports[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memExports) Save(_ context.Context, e *models.ExportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.exports[e.ExportID] = &cp
	return nil
}

func (m *memExports) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.exports, id)
	return nil
}

func (m *memExports) ListOlderThan(_ context.Context, cutoff time.Time) ([]*models.ExportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ExportRecord
	for _, e := range m.exports {
		if e.CreatedAt.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memExports) Close() error { return nil }

// fakeGemini returns canned content without a network call.
type fakeGemini struct {
	mu         sync.Mutex
	content    string
	err        error
	lastPrompt string
}

func (f *fakeGemini) GenerateContent(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	if f.content == "" {
		return "Dear Recipient,\n\nThis letter demands payment.\n\nRegards", nil
	}
	return f.content, nil
}

func (f *fakeGemini) Model() string { return "fake-model" }

// newTestServer builds a Server backed by in-memory storage, a temp-dir
// blob store, and a fake Gemini client. gemini may be nil.
func newTestServer(t *testing.T, gemini interfaces.GeminiClient) (*Server, *memStorage) {
	t.Helper()

	logger := common.NewSilentLogger()
	cfg := common.NewDefaultConfig()
	mem := newMemStorage()

	blobs, err := storage.NewFileBlobStore(logger, &common.FileBlobConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFileBlobStore failed: %v", err)
	}

	templateService := templates.NewService(mem.TemplateStore(), logger)
	extractService := extract.NewService(mem.DocumentStore(), blobs, logger, 0)
	letterService := letters.NewService(mem.LetterStore(), mem.AccountStore(), templateService, extractService, gemini, logger, 0)
	exportService := export.NewService(mem.ExportStore(), blobs, logger)
	hub := collab.NewHub(mem.LetterStore(), logger)
	t.Cleanup(hub.Stop)

	a := &app.App{
		Config:          cfg,
		Logger:          logger,
		Storage:         mem,
		Blobs:           blobs,
		GeminiClient:    gemini,
		TemplateService: templateService,
		LetterService:   letterService,
		ExportService:   exportService,
		ExtractService:  extractService,
		CollabHub:       hub,
		CollabTokens:    collab.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.GetCollabTokenExpiry()),
		StartupTime:     time.Now(),
	}

	srv := &Server{
		app:    a,
		logger: logger,
		logins: newLoginLimiter(cfg.Auth.LoginRateLimit),
	}
	return srv, mem
}

// seedUser stores a user and firm directly and returns the auth context.
func seedUser(t *testing.T, mem *memStorage, firmID, userID, role string) *common.AuthContext {
	t.Helper()
	ctx := context.Background()
	if _, err := mem.GetFirm(ctx, firmID); err != nil {
		mem.SaveFirm(ctx, &models.Firm{
			FirmID:     firmID,
			Name:       "Firm " + firmID,
			InviteCode: "INVITE-" + firmID,
			CreatedAt:  time.Now(),
		})
	}
	mem.SaveUser(ctx, &models.User{
		UserID:    userID,
		FirmID:    firmID,
		Email:     userID + "@example.com",
		Name:      userID,
		Role:      role,
		CreatedAt: time.Now(),
	})
	return &common.AuthContext{UserID: userID, FirmID: firmID, Role: role}
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return bytes.NewBuffer(data)
}

// authedRequest builds a request carrying the given identity, as the
// bearer middleware would after validating a token.
func authedRequest(method, target string, body *bytes.Buffer, ac *common.AuthContext) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if ac != nil {
		req = req.WithContext(common.WithAuthContext(req.Context(), ac))
	}
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}
