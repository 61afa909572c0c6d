package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/memberimport/internal/core"
	"github.com/JonMunkholm/memberimport/internal/logging"
)

// multipartOverhead is allowed on top of the file size limit for form
// boundaries and the other form fields.
const multipartOverhead = 1 << 20

// sseHeartbeat keeps idle progress streams open through proxies.
const sseHeartbeat = 15 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"imports": s.service.LimiterStatus(),
		"history": s.service.HistoryEnabled(),
	})
}

type fieldResponse struct {
	Key        core.FieldKey `json:"key"`
	Label      string        `json:"label"`
	Required   bool          `json:"required"`
	Synthetic  bool          `json:"synthetic"`
	EnumValues []string      `json:"enumValues,omitempty"`
}

// handleListFields returns the target schema.
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	fields := s.service.Fields()
	out := make([]fieldResponse, len(fields))
	for i, f := range fields {
		out[i] = fieldResponse{
			Key:        f.Key,
			Label:      f.Label,
			Required:   f.Required(),
			Synthetic:  f.Synthetic(),
			EnumValues: f.EnumValues,
		}
	}
	writeJSON(w, out)
}

// handleDownloadTemplate serves the reference import file.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	format := core.TemplateFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = core.TemplateCSV
	}

	data, err := core.Template(format)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == core.TemplateXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, core.TemplateFileName(format)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// readUpload reads the "file" part of a multipart request.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	maxSize := s.service.MaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return "", nil, &core.ParseError{Err: fmt.Errorf("file too large: exceeds limit of %d bytes: %w", maxSize, err)}
		}
		return "", nil, &requestError{Fields: map[string]string{"file": "expected a multipart/form-data upload"}}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, &core.ParseError{Err: errors.New("no file provided")}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return header.Filename, data, nil
}

// formMapping decodes the "mapping" form value, a JSON object of
// column -> field key.
func formMapping(r *http.Request) (map[string]string, error) {
	raw := r.FormValue("mapping")
	if raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, &requestError{Fields: map[string]string{"mapping": "mapping must be a JSON object of column to field key"}}
	}
	return m, nil
}

// handleInspect parses an upload and returns headers, a sample, the
// suggested mapping and matching presets.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	fileName, data, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	inspection, err := s.service.Inspect(r.Context(), fileName, data)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, inspection)
}

// handlePreview transforms an upload with the given mapping without
// submitting anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	fileName, data, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	mapping, err := formMapping(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	form := previewForm{Mapping: mapping}
	if err := s.validate.Struct(&form); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	result, err := s.service.Preview(r.Context(), fileName, data, form.Mapping)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, result)
}

type startImportResponse struct {
	ImportID    string `json:"importId"`
	ProgressURL string `json:"progressUrl"`
	ResultURL   string `json:"resultUrl"`
}

// handleStartImport validates the upload and starts a background run.
// Scope comes from the form, falling back to the scope headers.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	fileName, data, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	mapping, err := formMapping(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	form := importForm{
		OrganisationID: r.FormValue("organisationId"),
		BranchID:       r.FormValue("branchId"),
		Mapping:        mapping,
		SkipDuplicates: formBool(r, "skipDuplicates"),
		UpdateExisting: formBool(r, "updateExisting"),
	}
	if form.OrganisationID == "" {
		if scope, ok := core.ScopeFromContext(r.Context()); ok {
			form.OrganisationID = scope.OrganisationID
			if form.BranchID == "" {
				form.BranchID = scope.BranchID
			}
		}
	}
	if err := s.validate.Struct(&form); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	importID, err := s.service.StartImport(r.Context(), core.ImportRequest{
		FileName: fileName,
		Data:     data,
		Mapping:  form.Mapping,
		Policy:   core.ImportPolicy{SkipDuplicates: form.SkipDuplicates, UpdateExisting: form.UpdateExisting},
		Scope:    core.Scope{OrganisationID: form.OrganisationID, BranchID: form.BranchID},
	})
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	logging.WithFields(r.Context(), "import_id", importID, "file", fileName).Info("import started")

	writeJSONStatus(w, http.StatusAccepted, startImportResponse{
		ImportID:    importID,
		ProgressURL: "/api/imports/" + importID + "/progress",
		ResultURL:   "/api/imports/" + importID + "/result",
	})
}

func formBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.FormValue(name))
	return b
}

// handleImportProgress streams progress via Server-Sent Events.
// Supports resumption via the Last-Event-ID header or lastEventId query
// parameter; the event id is the completed record count.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	lastEventID := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		lastEventID, _ = strconv.Atoi(v)
	} else if v := r.URL.Query().Get("lastEventId"); v != "" {
		lastEventID, _ = strconv.Atoi(v)
	}

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	flush := func() {
		if err := rc.Flush(); err != nil {
			logging.FromContext(r.Context()).Debug("sse flush failed", "error", err)
		}
	}
	flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				final, err := s.service.GetProgress(importID)
				data := []byte("{}")
				if err == nil {
					data, _ = json.Marshal(final)
				}
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flush()
				return
			}

			// Skip events the client already has, but always deliver the
			// terminal state.
			if progress.Completed <= lastEventID && !progress.Done() {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Completed, data)
			flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the final report, waiting for the run to
// finish unless wait=false.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	if wait, err := strconv.ParseBool(r.URL.Query().Get("wait")); err == nil && !wait {
		if progress, err := s.service.GetProgress(importID); err == nil && !progress.Done() {
			writeJSONStatus(w, http.StatusAccepted, progress)
			return
		}
	}

	report, err := s.service.GetResult(r.Context(), importID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

// handleExportFailures exports validation errors and rejected submissions
// of a run as CSV.
func (s *Server) handleExportFailures(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	var buf bytes.Buffer
	if err := s.service.WriteFailuresCSV(r.Context(), importID, &buf); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="import_%s_failures.csv"`, importID))
	_, _ = w.Write(buf.Bytes())
}
