package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dictumlegal/dictum/internal/models"
	"github.com/dictumlegal/dictum/internal/services/export"
)

func TestLetterExportAndDownload(t *testing.T) {
	srv, mem := newTestServer(t, &fakeGemini{content: "Dear Acme,\n\nPay the claim.\n"})
	alice := seedUser(t, mem, "firm-1", "alice", models.RoleMember)

	letter := generateLetter(t, srv, alice, "Roe v Acme")
	id := letter["letter_id"].(string)

	rec := httptest.NewRecorder()
	srv.handleLetterExport(rec, authedRequest(http.MethodPost, "/api/letters/"+id+"/export", nil, alice), id)
	if rec.Code != http.StatusCreated {
		t.Fatalf("export: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	record := resp["export"].(map[string]interface{})
	exportID := record["export_id"].(string)
	if !strings.HasSuffix(record["filename"].(string), ".docx") {
		t.Errorf("expected a .docx filename, got %v", record["filename"])
	}
	if resp["download_url"] != "/api/exports/"+exportID {
		t.Errorf("unexpected download url: %v", resp["download_url"])
	}

	rec = httptest.NewRecorder()
	srv.handleExportDownload(rec, authedRequest(http.MethodGet, "/api/exports/"+exportID, nil, alice))
	if rec.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != export.DOCXContentType {
		t.Errorf("unexpected content type: %s", got)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("expected attachment disposition, got %s", cd)
	}
	// DOCX artifacts are zip archives.
	if body := rec.Body.Bytes(); len(body) < 4 || body[0] != 'P' || body[1] != 'K' {
		t.Error("expected a zip artifact")
	}
}

func TestExportDownload_CrossFirmHidden(t *testing.T) {
	srv, mem := newTestServer(t, &fakeGemini{})
	alice := seedUser(t, mem, "firm-1", "alice", models.RoleMember)
	carol := seedUser(t, mem, "firm-2", "carol", models.RoleAdmin)

	letter := generateLetter(t, srv, alice, "Roe v Acme")
	id := letter["letter_id"].(string)

	rec := httptest.NewRecorder()
	srv.handleLetterExport(rec, authedRequest(http.MethodPost, "/api/letters/"+id+"/export", nil, alice), id)
	exportID := decodeResponse(t, rec)["export"].(map[string]interface{})["export_id"].(string)

	rec = httptest.NewRecorder()
	srv.handleExportDownload(rec, authedRequest(http.MethodGet, "/api/exports/"+exportID, nil, carol))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 cross-firm, got %d", rec.Code)
	}
}

func TestExportDownload_Unknown(t *testing.T) {
	srv, mem := newTestServer(t, nil)
	alice := seedUser(t, mem, "firm-1", "alice", models.RoleMember)

	rec := httptest.NewRecorder()
	srv.handleExportDownload(rec, authedRequest(http.MethodGet, "/api/exports/nope", nil, alice))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestLetterExport_RequiresReadAccess(t *testing.T) {
	srv, mem := newTestServer(t, &fakeGemini{})
	alice := seedUser(t, mem, "firm-1", "alice", models.RoleMember)
	bob := seedUser(t, mem, "firm-1", "bob", models.RoleMember)

	letter := generateLetter(t, srv, alice, "Roe v Acme")
	id := letter["letter_id"].(string)

	rec := httptest.NewRecorder()
	srv.handleLetterExport(rec, authedRequest(http.MethodPost, "/api/letters/"+id+"/export", nil, bob), id)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for invisible letter, got %d", rec.Code)
	}
}
