package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/icu-core/internal/protocol"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/transitions", s.handleTransitions)
		r.Get("/events", s.handleEvents)
		r.Get("/metrics", s.handleMetrics)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	return r
}

// handleHealth reports liveness plus the controller state, so a Halted
// controller is visible to probes without parsing the full status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.status.Snapshot()
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"state":   snap.State,
		"driver":  snap.Driver,
	}
	if snap.Failure != "" {
		body["status"] = "degraded"
		body["failure"] = snap.Failure
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "journal is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.history.RecentTransitions(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading transitions", "error", err)
		writeInternalError(w, "failed to read transitions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": rows, "count": len(rows)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "journal is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	kind := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kind != "" && !knownKind(kind) {
		writeBadRequest(w, "unknown kind: "+kind)
		return
	}
	rows, err := s.history.RecentEvents(r.Context(), kind, limit)
	if err != nil {
		s.logger.Error("reading perception events", "error", err)
		writeInternalError(w, "failed to read events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": rows, "count": len(rows)})
}

// parseLimit reads ?limit=. Zero means the journal default; the journal
// clamps large values.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func knownKind(name string) bool {
	for _, k := range protocol.Kinds() {
		if k != protocol.None && k.String() == name {
			return true
		}
	}
	return false
}
