package web

// errors.go provides unified error response handling for the web layer.
//
// Technical errors are logged with the request id; clients receive the
// user-facing message, action and support code from core.MapError.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/memberimport/internal/core"
	"github.com/JonMunkholm/memberimport/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Action  string            `json:"action,omitempty"`
	Code    string            `json:"code"`
	Missing []string          `json:"missing,omitempty"` // Unmapped required fields
	Fields  map[string]string `json:"fields,omitempty"`  // Request validation failures
}

// respondError logs err and writes the mapped user message. Known error
// types override the fallback status.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	status := statusFor(err, fallback)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		resp.Error = userMsg.Message
	}

	var mie *core.MappingIncompleteError
	if errors.As(err, &mie) {
		resp.Missing = mie.Missing
	}
	var ve *requestError
	if errors.As(err, &ve) {
		resp.Fields = ve.Fields
		resp.Code = "REQ001"
		resp.Message = "The request is invalid"
		resp.Action = "Correct the highlighted fields and try again"
	}

	writeJSONStatus(w, status, resp)
}

// statusFor maps known errors to HTTP statuses.
func statusFor(err error, fallback int) int {
	var (
		maxBytes *http.MaxBytesError
		mie      *core.MappingIncompleteError
	)
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrImportNotFound), errors.Is(err, core.ErrPresetNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrPresetExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrHistoryUnavailable):
		return http.StatusNotImplemented
	case errors.As(err, &mie):
		return http.StatusUnprocessableEntity
	case core.IsParseError(err):
		return http.StatusBadRequest
	}
	return fallback
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are only logged since
// headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
