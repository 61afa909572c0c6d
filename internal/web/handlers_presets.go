package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/memberimport/internal/core"
)

// handleListPresets returns all mapping presets.
func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.service.ListPresets(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, presets)
}

// handleMatchPresets finds presets matching the given headers, passed as
// repeated "header" parameters or one comma-separated "headers" parameter.
func (s *Server) handleMatchPresets(w http.ResponseWriter, r *http.Request) {
	headers := r.URL.Query()["header"]
	if len(headers) == 0 {
		if joined := r.URL.Query().Get("headers"); joined != "" {
			headers = strings.Split(joined, ",")
		}
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	if len(headers) == 0 {
		s.respondError(w, r, &requestError{Fields: map[string]string{"headers": "headers is a required field"}}, http.StatusBadRequest)
		return
	}

	matches, err := s.service.MatchPresets(r.Context(), headers)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []core.PresetMatch{}
	}
	writeJSON(w, matches)
}

// handleGetPreset returns a single preset by id.
func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := s.service.GetPreset(r.Context(), chi.URLParam(r, "presetID"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, preset)
}

// handleCreatePreset saves a new preset.
func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	preset, err := s.service.CreatePreset(r.Context(), core.MappingPreset{
		Name:    req.Name,
		Headers: req.Headers,
		Mapping: req.Mapping,
	})
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSONStatus(w, http.StatusCreated, preset)
}

// handleUpdatePreset replaces a preset.
func (s *Server) handleUpdatePreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	preset, err := s.service.UpdatePreset(r.Context(), core.MappingPreset{
		ID:      chi.URLParam(r, "presetID"),
		Name:    req.Name,
		Headers: req.Headers,
		Mapping: req.Mapping,
	})
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, preset)
}

// handleDeletePreset removes a preset.
func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePreset(r.Context(), chi.URLParam(r, "presetID")); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
