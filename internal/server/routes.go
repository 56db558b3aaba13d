package server

import (
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dictumlegal/dictum/internal/common"
)

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)
	mux.HandleFunc("/debug/memstats", s.handleMemstats)

	// Auth
	mux.HandleFunc("/api/auth/register", s.handleAuthRegister)
	mux.HandleFunc("/api/auth/login", s.handleAuthLogin)
	mux.HandleFunc("/api/auth/validate", s.handleAuthValidate)
	mux.HandleFunc("/api/auth/profile", s.handleAuthProfile)

	// Firm administration
	mux.HandleFunc("/api/firm", s.handleFirmGet)
	mux.HandleFunc("/api/firm/invite/rotate", s.handleFirmRotateInvite)
	mux.HandleFunc("/api/firm/members/", s.routeFirmMembers)
	mux.HandleFunc("/api/firm/members", s.handleFirmMembers)

	// Templates
	mux.HandleFunc("/api/templates/match", s.handleTemplateMatch)
	mux.HandleFunc("/api/templates/", s.routeTemplates)
	mux.HandleFunc("/api/templates", s.routeTemplates)

	// Source documents
	mux.HandleFunc("/api/documents/", s.routeDocuments)
	mux.HandleFunc("/api/documents", s.routeDocuments)

	// Letters
	mux.HandleFunc("/api/letters/generate", s.handleLetterGenerate)
	mux.HandleFunc("/api/letters/", s.routeLetters)
	mux.HandleFunc("/api/letters", s.handleLetterCollection)

	// Exports
	mux.HandleFunc("/api/exports/", s.handleExportDownload)

	// Collaboration
	mux.HandleFunc("/api/collab/token", s.handleCollabToken)
	mux.HandleFunc("/api/collab/ws", s.handleCollabWS)
}

// routeLetters dispatches /api/letters/{id}/{action} to the appropriate handler.
func (s *Server) routeLetters(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/letters/")
	if path == "" {
		s.handleLetterCollection(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	letterID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "":
		s.handleLetterItem(w, r, letterID)
	case "refine":
		s.handleLetterRefine(w, r, letterID)
	case "share":
		s.handleLetterShare(w, r, letterID)
	case "finalize":
		s.handleLetterFinalize(w, r, letterID)
	case "export":
		s.handleLetterExport(w, r, letterID)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// routeTemplates dispatches /api/templates and /api/templates/{id}.
func (s *Server) routeTemplates(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/templates")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			s.handleTemplateList(w, r)
		case http.MethodPost:
			s.handleTemplateCreate(w, r)
		default:
			RequireMethod(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	if strings.Contains(path, "/") {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	s.handleTemplateItem(w, r, path)
}

// routeDocuments dispatches /api/documents, /api/documents/{id}, and the
// {id}/text and {id}/download subresources.
func (s *Server) routeDocuments(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/documents")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			s.handleDocumentList(w, r)
		case http.MethodPost:
			s.handleDocumentUpload(w, r)
		default:
			RequireMethod(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	parts := strings.SplitN(path, "/", 2)
	documentID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "":
		s.handleDocumentItem(w, r, documentID)
	case "text":
		s.handleDocumentText(w, r, documentID)
	case "download":
		s.handleDocumentDownload(w, r, documentID)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// routeFirmMembers dispatches /api/firm/members/{id} and /api/firm/members/{id}/role.
func (s *Server) routeFirmMembers(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/firm/members/")
	if path == "" {
		s.handleFirmMembers(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	switch {
	case len(parts) == 1:
		s.handleFirmMemberRemove(w, r, parts[0])
	case parts[1] == "role":
		s.handleFirmMemberRole(w, r, parts[0])
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":       s.app.Config.Environment,
		"storage_address":   s.app.Config.Storage.Address,
		"storage_namespace": s.app.Config.Storage.Namespace,
		"storage_database":  s.app.Config.Storage.Database,
		"blob_backend":      s.app.Config.Blob.Backend,
		"logging_level":     s.app.Config.Logging.Level,
		"gemini_configured": s.app.GeminiClient != nil,
		"gemini_model":      s.app.Config.Clients.Gemini.Model,
		"max_upload_bytes":  s.app.Config.Letters.MaxUploadBytes,
		"export_max_age":    s.app.Config.Exports.GetMaxAge().String(),
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	uptime := time.Since(s.app.StartupTime).Round(time.Second)

	resp := map[string]interface{}{
		"version":      common.GetVersion(),
		"build":        common.GetBuild(),
		"commit":       common.GetGitCommit(),
		"uptime":       uptime.String(),
		"started_at":   s.app.StartupTime,
		"collab_rooms": s.app.CollabHub.RoomCount(),
	}

	if correlationID := r.URL.Query().Get("correlation_id"); correlationID != "" {
		if logs, err := s.logger.GetMemoryLogsForCorrelation(correlationID); err == nil {
			resp["correlation_logs"] = logs
		}
	}

	if logs, err := s.logger.GetMemoryLogsWithLimit(limit); err == nil {
		resp["recent_logs"] = logs
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMemstats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"heap_alloc_bytes": m.HeapAlloc,
		"heap_inuse_bytes": m.HeapInuse,
		"heap_idle_bytes":  m.HeapIdle,
		"sys_bytes":        m.Sys,
		"num_gc":           m.NumGC,
		"heap_alloc_mb":    float64(m.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":    float64(m.HeapInuse) / 1024 / 1024,
		"goroutines":       runtime.NumGoroutine(),
	})
}
