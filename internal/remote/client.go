// Package remote is the HTTP client for the member service's create-member
// operation.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/memberimport/internal/core"
)

var (
	_ core.MemberCreator = (*Client)(nil)
	_ core.Pinger        = (*Client)(nil)
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	CreatePath string // default: /api/members
	HealthPath string // empty disables Ping
}

// Client creates members through the member service's JSON API.
type Client struct {
	baseURL    string
	apiKey     string
	createPath string
	healthPath string
	http       *http.Client
}

// NewClient returns a client for cfg. BaseURL is required.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("remote base url must start with http:// or https://, got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CreatePath == "" {
		cfg.CreatePath = "/api/members"
	}

	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		createPath: "/" + strings.TrimLeft(cfg.CreatePath, "/"),
		healthPath: cfg.HealthPath,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}, nil
}

// createRequest is the body sent to the create-member endpoint: the record's
// fields plus the organisation and branch it belongs to.
func createRequest(scope core.Scope, rec core.NormalizedRecord) map[string]string {
	body := make(map[string]string, rec.Len()+2)
	for key, val := range rec.Fields() {
		body[string(key)] = val
	}
	body["organisationId"] = scope.OrganisationID
	if scope.BranchID != "" {
		body["branchId"] = scope.BranchID
	}
	return body
}

// createResponse accepts both {"id": ...} and {"data": {"id": ...}}.
type createResponse struct {
	ID   string `json:"id"`
	Data *struct {
		ID string `json:"id"`
	} `json:"data"`
}

// CreateMember submits one record. Non-2xx responses are returned as
// *StatusError carrying the service's message.
func (c *Client) CreateMember(ctx context.Context, scope core.Scope, rec core.NormalizedRecord) (core.CreatedIdentity, error) {
	payload, err := json.Marshal(createRequest(scope, rec))
	if err != nil {
		return core.CreatedIdentity{}, fmt.Errorf("encode member: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.createPath, bytes.NewReader(payload))
	if err != nil {
		return core.CreatedIdentity{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return core.CreatedIdentity{}, fmt.Errorf("create member: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.CreatedIdentity{}, newStatusError(resp)
	}

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return core.CreatedIdentity{}, fmt.Errorf("decode create response: %w", err)
	}
	id := out.ID
	if id == "" && out.Data != nil {
		id = out.Data.ID
	}
	return core.CreatedIdentity{ID: id}, nil
}

// Ping checks the health endpoint. Without a configured path it does nothing.
func (c *Client) Ping(ctx context.Context) error {
	if c.healthPath == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+strings.TrimLeft(c.healthPath, "/"), nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: %w", newStatusError(resp))
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// StatusError is a non-2xx response from the member service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if e.Message == "" {
		return fmt.Sprintf("remote: %d %s", e.StatusCode, text)
	}
	return fmt.Sprintf("remote: %d %s: %s", e.StatusCode, text, e.Message)
}

// errorBody covers the common error envelopes: {"message"}, {"error"} and
// {"error": {"message"}}. Validation APIs sometimes return a list in "errors".
type errorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func newStatusError(resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Message: extractMessage(raw)}
}

func extractMessage(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		// Not JSON: use the first line of the text body.
		line, _, _ := strings.Cut(string(raw), "\n")
		return strings.TrimSpace(line)
	}

	if body.Message != "" {
		return body.Message
	}
	if len(body.Error) > 0 {
		var s string
		if json.Unmarshal(body.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	var msgs []string
	for _, e := range body.Errors {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}
