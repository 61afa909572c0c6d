package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/memberimport/internal/config"
	"github.com/JonMunkholm/memberimport/internal/core"
)

const membersCSV = "Name,Email,Gender\n" +
	"Jane Doe,jane@x.com,female\n" +
	"   ,bad@x.com,\n" +
	"John Smith,taken@x.com,male\n"

const membersMapping = `{"Name":"fullName","Email":"email","Gender":"gender"}`

type fakeCreator struct{}

func (fakeCreator) CreateMember(_ context.Context, _ core.Scope, rec core.NormalizedRecord) (core.CreatedIdentity, error) {
	if rec.Get(core.KeyEmail) == "taken@x.com" {
		return core.CreatedIdentity{}, errors.New("remote: 409 Conflict: member already exists")
	}
	return core.CreatedIdentity{ID: "m-" + rec.Get(core.KeyFirstName)}, nil
}

// memStore is an in-memory core.Store.
type memStore struct {
	mu      sync.Mutex
	runs    map[string]*core.ImportReport
	presets map[string]core.MappingPreset
}

func newMemStore() *memStore {
	return &memStore{runs: map[string]*core.ImportReport{}, presets: map[string]core.MappingPreset{}}
}

func (m *memStore) SaveRun(_ context.Context, r *core.ImportReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return nil
}

func (m *memStore) GetRun(_ context.Context, id string) (*core.ImportReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		return r, nil
	}
	return nil, core.ErrImportNotFound
}

func (m *memStore) ListRuns(context.Context, int, int) ([]core.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []core.RunSummary{}
	for _, r := range m.runs {
		out = append(out, core.RunSummary{ID: r.ID, FileName: r.FileName, SuccessCount: r.SuccessCount})
	}
	return out, nil
}

func (m *memStore) PurgeRuns(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memStore) ListPresets(context.Context) ([]core.MappingPreset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []core.MappingPreset{}
	for _, p := range m.presets {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) GetPreset(_ context.Context, id string) (*core.MappingPreset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.presets[id]
	if !ok {
		return nil, core.ErrPresetNotFound
	}
	return &p, nil
}

func (m *memStore) CreatePreset(_ context.Context, p core.MappingPreset) (*core.MappingPreset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.presets {
		if strings.EqualFold(existing.Name, p.Name) {
			return nil, core.ErrPresetExists
		}
	}
	p.ID = uuid.NewString()
	m.presets[p.ID] = p
	return &p, nil
}

func (m *memStore) UpdatePreset(_ context.Context, p core.MappingPreset) (*core.MappingPreset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.presets[p.ID]; !ok {
		return nil, core.ErrPresetNotFound
	}
	m.presets[p.ID] = p
	return &p, nil
}

func (m *memStore) DeletePreset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.presets[id]; !ok {
		return core.ErrPresetNotFound
	}
	delete(m.presets, id)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, RequestTimeout: 5 * time.Second},
		Rate:     config.RateLimitConfig{Enabled: false},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, store core.Store, cfg *config.Config) http.Handler {
	t.Helper()
	svc := core.NewService(fakeCreator{}, store, core.ServiceConfig{ResultTTL: time.Minute})
	srv := NewServer(svc, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv.Handler()
}

// uploadRequest builds a multipart request with a file and form fields.
func uploadRequest(t *testing.T, path, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndFields(t *testing.T) {
	h := newTestServer(t, nil, testConfig())

	rec := do(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["history"])

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/fields", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	fields := decode[[]fieldResponse](t, rec)
	require.NotEmpty(t, fields)
	assert.Equal(t, core.KeyFullName, fields[0].Key)
	assert.True(t, fields[0].Synthetic)
	assert.True(t, fields[1].Required)
}

func TestDownloadTemplate(t *testing.T) {
	h := newTestServer(t, nil, testConfig())

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/imports/template", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "First Name,Last Name"))

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/imports/template?format=xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/imports/template?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE003", decode[ErrorResponse](t, rec).Code)
}

func TestInspectAndPreview(t *testing.T) {
	h := newTestServer(t, nil, testConfig())

	rec := do(h, uploadRequest(t, "/api/imports/inspect", "members.csv", membersCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	insp := decode[struct {
		Headers   []string           `json:"headers"`
		RowCount  int                `json:"rowCount"`
		Suggested map[string]*string `json:"suggested"`
	}](t, rec)
	assert.Equal(t, []string{"Name", "Email", "Gender"}, insp.Headers)
	assert.Equal(t, 3, insp.RowCount)
	require.NotNil(t, insp.Suggested["Name"])
	assert.Equal(t, "fullName", *insp.Suggested["Name"])

	rec = do(h, uploadRequest(t, "/api/imports/preview", "members.csv", membersCSV, map[string]string{"mapping": membersMapping}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[core.PreviewResult](t, rec)
	assert.Equal(t, 2, preview.ValidCount)
	assert.Equal(t, 1, preview.RejectedRows)
}

func TestInspectErrors(t *testing.T) {
	h := newTestServer(t, nil, testConfig())

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantErr  string
	}{
		{"no file", uploadRequest(t, "/api/imports/inspect", "", "", map[string]string{"x": "y"}), http.StatusBadRequest, "FILE004"},
		{"unsupported format", uploadRequest(t, "/api/imports/inspect", "members.pdf", "x", nil), http.StatusBadRequest, "FILE003"},
		{"header only", uploadRequest(t, "/api/imports/inspect", "members.csv", "Name,Email\n", nil), http.StatusBadRequest, "FILE006"},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/api/imports/inspect", strings.NewReader("x")), http.StatusBadRequest, "REQ001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestStartImportFlow(t *testing.T) {
	store := newMemStore()
	h := newTestServer(t, store, testConfig())

	rec := do(h, uploadRequest(t, "/api/imports", "members.csv", membersCSV, map[string]string{
		"mapping":        membersMapping,
		"organisationId": "org-1",
	}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	started := decode[startImportResponse](t, rec)
	require.NotEmpty(t, started.ImportID)

	rec = do(h, httptest.NewRequest(http.MethodGet, started.ResultURL, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[core.ImportReport](t, rec)
	assert.Equal(t, 2, report.TotalProcessed)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Len(t, report.ValidationErrors, 2)
	assert.Equal(t, "org-1", report.Scope.OrganisationID)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/imports/"+started.ImportID+"/failures.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Row,Stage,Field,Name,Email,Error", lines[0])
	assert.Contains(t, lines[3], "taken@x.com")

	rec = do(h, httptest.NewRequest(http.MethodGet, started.ProgressURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: progress")
	assert.Contains(t, rec.Body.String(), "event: complete")
	assert.Contains(t, rec.Body.String(), `"phase":"complete"`)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), started.ImportID)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/history/"+started.ImportID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStartImportScopeHeaders(t *testing.T) {
	h := newTestServer(t, nil, testConfig())

	req := uploadRequest(t, "/api/imports", "members.csv", membersCSV, map[string]string{"mapping": membersMapping})
	req.Header.Set("X-Organisation-Id", "org-h")
	req.Header.Set("X-Branch-Id", "br-h")
	rec := do(h, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	started := decode[startImportResponse](t, rec)
	rec = do(h, httptest.NewRequest(http.MethodGet, started.ResultURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.Scope{OrganisationID: "org-h", BranchID: "br-h"}, decode[core.ImportReport](t, rec).Scope)
}

func TestStartImportRejections(t *testing.T) {
	h := newTestServer(t, nil, testConfig())

	rec := do(h, uploadRequest(t, "/api/imports", "members.csv", membersCSV, map[string]string{"mapping": membersMapping}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "REQ001", resp.Code)
	assert.Contains(t, resp.Fields, "organisationId")

	rec = do(h, uploadRequest(t, "/api/imports", "members.csv", membersCSV, map[string]string{
		"mapping":        `{"Email":"email"}`,
		"organisationId": "org-1",
	}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp = decode[ErrorResponse](t, rec)
	assert.Equal(t, "MAP001", resp.Code)
	assert.Equal(t, []string{"First Name", "Last Name"}, resp.Missing)

	rec = do(h, uploadRequest(t, "/api/imports", "members.csv", membersCSV, map[string]string{
		"mapping":        `{"Nope":"email"}`,
		"organisationId": "org-1",
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MAP002", decode[ErrorResponse](t, rec).Code)

	rec = do(h, uploadRequest(t, "/api/imports", "members.csv", membersCSV, map[string]string{
		"mapping":        `not json`,
		"organisationId": "org-1",
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Fields, "mapping")
}

func TestUnknownImport(t *testing.T) {
	h := newTestServer(t, nil, testConfig())

	for _, path := range []string{
		"/api/imports/nope/result",
		"/api/imports/nope/progress",
		"/api/imports/nope/failures.csv",
	} {
		rec := do(h, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "IMP002", decode[ErrorResponse](t, rec).Code, path)
	}

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "IMP003", decode[ErrorResponse](t, rec).Code)
}

func TestPresets(t *testing.T) {
	h := newTestServer(t, newMemStore(), testConfig())

	body := `{"name":"Church roll","headers":["Name","Email"],"mapping":{"Name":"fullName","Email":"email"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/presets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := do(h, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[core.MappingPreset](t, rec)
	require.NotEmpty(t, created.ID)

	rec = do(h, httptest.NewRequest(http.MethodPost, "/api/presets", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/presets/match?header=Name&header=Email&header=Phone", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode[[]core.PresetMatch](t, rec)
	require.Len(t, matches, 1)
	assert.Equal(t, created.ID, matches[0].Preset.ID)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/presets/match?headers=Phone", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	update := `{"name":"Church roll","headers":["Name","Email"],"mapping":{"Name":"fullName"}}`
	rec = do(h, httptest.NewRequest(http.MethodPut, "/api/presets/"+created.ID, strings.NewReader(update)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]string{"Name": "fullName"}, decode[core.MappingPreset](t, rec).Mapping)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/presets/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodDelete, "/api/presets/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/presets/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "MAP004", decode[ErrorResponse](t, rec).Code)
}

func TestPresetValidation(t *testing.T) {
	h := newTestServer(t, newMemStore(), testConfig())

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"empty body", ``, "body"},
		{"unknown field", `{"name":"x","headers":["A"],"mapping":{"A":"email"},"extra":1}`, "body"},
		{"blank name", `{"name":"  ","headers":["A"],"mapping":{"A":"email"}}`, "name"},
		{"no headers", `{"name":"x","headers":[],"mapping":{"A":"email"}}`, "headers"},
		{"blank header", `{"name":"x","headers":["A",""],"mapping":{"A":"email"}}`, "headers[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, httptest.NewRequest(http.MethodPost, "/api/presets", strings.NewReader(tt.body)))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, "REQ001", resp.Code)
			assert.Contains(t, resp.Fields, tt.wantField)
		})
	}

	rec := do(h, httptest.NewRequest(http.MethodPost, "/api/presets",
		strings.NewReader(`{"name":"x","headers":["A"],"mapping":{"A":"shoeSize"}}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MAP003", decode[ErrorResponse](t, rec).Code)
}

func TestPresetsWithoutStore(t *testing.T) {
	h := newTestServer(t, nil, testConfig())

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/presets", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/presets/match?headers=Name", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	h := newTestServer(t, nil, cfg)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/fields", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, do(h, req).Code)

	// Health stays open for probes.
	assert.Equal(t, http.StatusOK, do(h, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestRateLimitedImports(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, ImportLimit: 1}
	h := newTestServer(t, nil, cfg)

	rec := do(h, uploadRequest(t, "/api/imports/inspect", "members.csv", membersCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, uploadRequest(t, "/api/imports/inspect", "members.csv", membersCSV, nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other routes use the general limit.
	assert.Equal(t, http.StatusOK, do(h, httptest.NewRequest(http.MethodGet, "/api/fields", nil)).Code)
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.Security.AllowedOrigins = []string{"https://app.example.com"}
	h := newTestServer(t, nil, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/fields", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := do(h, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
