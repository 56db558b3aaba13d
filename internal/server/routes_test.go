package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dictumlegal/dictum/internal/common"
)

func TestDiagnostics_RecentLogs(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	logger := common.NewLoggerWithOutput("info", io.Discard)
	srv.logger = logger

	logger.Info().Str("correlation_id", "req-9").Msg("letter saved")
	logger.Warn().Msg("slow export")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/diagnostics?limit=1&correlation_id=req-9", nil)
	srv.handleDiagnostics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)

	recent, ok := resp["recent_logs"].([]interface{})
	if !ok {
		t.Fatalf("recent_logs missing or wrong type: %T", resp["recent_logs"])
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent entry for limit=1, got %d", len(recent))
	}
	if msg := recent[0].(map[string]interface{})["message"]; msg != "slow export" {
		t.Errorf("recent message = %v, want %q", msg, "slow export")
	}

	corr, ok := resp["correlation_logs"].([]interface{})
	if !ok {
		t.Fatalf("correlation_logs missing or wrong type: %T", resp["correlation_logs"])
	}
	if len(corr) != 1 {
		t.Fatalf("expected 1 correlation entry, got %d", len(corr))
	}
	if msg := corr[0].(map[string]interface{})["message"]; msg != "letter saved" {
		t.Errorf("correlation message = %v, want %q", msg, "letter saved")
	}
}

func TestDiagnostics_LimitBounds(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	logger := common.NewLoggerWithOutput("info", io.Discard)
	srv.logger = logger

	for i := 0; i < 60; i++ {
		logger.Info().Msg("entry")
	}

	// Out-of-range limits fall back to the default of 50.
	for _, q := range []string{"", "?limit=0", "?limit=9999", "?limit=bogus"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/diagnostics"+q, nil)
		srv.handleDiagnostics(rec, req)

		resp := decodeResponse(t, rec)
		recent, _ := resp["recent_logs"].([]interface{})
		if len(recent) != 50 {
			t.Errorf("query %q: expected 50 entries, got %d", q, len(recent))
		}
	}
}
