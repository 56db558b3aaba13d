package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dictumlegal/dictum/internal/models"
)

func TestCollabToken(t *testing.T) {
	srv, mem := newTestServer(t, &fakeGemini{})
	alice := seedUser(t, mem, "firm-1", "alice", models.RoleMember)

	letter := generateLetter(t, srv, alice, "Roe v Acme")
	id := letter["letter_id"].(string)

	rec := httptest.NewRecorder()
	srv.handleCollabToken(rec, authedRequest(http.MethodPost, "/api/collab/token",
		jsonBody(t, map[string]string{"letter_id": id}), alice))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	token := resp["token"].(string)
	if token == "" {
		t.Fatal("expected a token")
	}

	claims, err := srv.app.CollabTokens.Validate(token)
	if err != nil {
		t.Fatalf("minted token failed validation: %v", err)
	}
	if claims.UserID != "alice" || claims.LetterID != id {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestCollabToken_ReadOnlyAccessRejected(t *testing.T) {
	srv, mem := newTestServer(t, &fakeGemini{})
	alice := seedUser(t, mem, "firm-1", "alice", models.RoleMember)
	bob := seedUser(t, mem, "firm-1", "bob", models.RoleMember)

	letter := generateLetter(t, srv, alice, "Roe v Acme")
	id := letter["letter_id"].(string)

	// Firm-wide visibility grants read, not write.
	rec := httptest.NewRecorder()
	srv.handleLetterShare(rec, authedRequest(http.MethodPost, "/api/letters/"+id+"/share",
		jsonBody(t, map[string]interface{}{"visibility": models.VisibilityFirm}), alice), id)
	if rec.Code != http.StatusOK {
		t.Fatalf("share failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.handleCollabToken(rec, authedRequest(http.MethodPost, "/api/collab/token",
		jsonBody(t, map[string]string{"letter_id": id}), bob))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for read-only user, got %d", rec.Code)
	}
}

func TestCollabToken_FinalLetterRejected(t *testing.T) {
	srv, mem := newTestServer(t, &fakeGemini{})
	alice := seedUser(t, mem, "firm-1", "alice", models.RoleMember)

	letter := generateLetter(t, srv, alice, "Roe v Acme")
	id := letter["letter_id"].(string)

	rec := httptest.NewRecorder()
	srv.handleLetterFinalize(rec, authedRequest(http.MethodPost, "/api/letters/"+id+"/finalize", nil, alice), id)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.handleCollabToken(rec, authedRequest(http.MethodPost, "/api/collab/token",
		jsonBody(t, map[string]string{"letter_id": id}), alice))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for final letter, got %d", rec.Code)
	}
}

func TestCollabToken_UnknownLetter(t *testing.T) {
	srv, mem := newTestServer(t, nil)
	alice := seedUser(t, mem, "firm-1", "alice", models.RoleMember)

	rec := httptest.NewRecorder()
	srv.handleCollabToken(rec, authedRequest(http.MethodPost, "/api/collab/token",
		jsonBody(t, map[string]string{"letter_id": "missing"}), alice))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCollabWS_RequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.handleCollabWS(rec, httptest.NewRequest(http.MethodGet, "/api/collab/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.handleCollabWS(rec, httptest.NewRequest(http.MethodGet, "/api/collab/ws?token=garbage", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: expected 401, got %d", rec.Code)
	}
}
