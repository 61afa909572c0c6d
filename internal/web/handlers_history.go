package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// handleListHistory returns past runs, newest first.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)

	runs, err := s.service.ListHistory(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetHistory returns a stored report.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.GetHistory(r.Context(), chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}
