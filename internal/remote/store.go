// Package remote provides an HTTP client for accessing a remote acctdash server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/usernameweb/acctdash/internal/auth"
	"github.com/usernameweb/acctdash/internal/query"
)

// Store implements query.Backend and auth.Session against a remote server.
// The server scopes every request to the owner bound to the API key, so
// owner arguments must match the remote session's owner.
type Store struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ query.Backend = (*Store)(nil)
	_ auth.Session  = (*Store)(nil)
)

// Config holds configuration for creating a remote store.
type Config struct {
	URL           string
	APIKey        string
	AllowInsecure bool
	Timeout       time.Duration
}

// New creates a new remote store.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Enforce HTTPS unless AllowInsecure is set
	if parsedURL.Scheme == "http" && !cfg.AllowInsecure {
		return nil, fmt.Errorf("HTTPS required for remote connections\n\n" +
			"Options:\n" +
			"  1. Use HTTPS: [remote] url = \"https://dash:8080\"\n" +
			"  2. For trusted networks: add 'allow_insecure = true' to [remote] in config.toml")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return nil, fmt.Errorf("remote URL must include a host (e.g., https://dash:8080)")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Store{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		httpClient: newHTTPClient(&http.Client{Timeout: timeout}, cfg.APIKey),
	}, nil
}

// newHTTPClient wraps base so every request carries the API key as a
// bearer token.
func newHTTPClient(base *http.Client, apiKey string) *http.Client {
	if apiKey == "" {
		return base
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	c := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey}))
	c.Timeout = base.Timeout
	return c
}

// Close is a no-op for HTTP client.
func (s *Store) Close() error {
	return nil
}

// doRequest performs an authenticated HTTP request. A non-nil in is sent as
// a JSON body.
func (s *Store) doRequest(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// call performs a request and decodes a 2xx JSON response into out (which
// may be nil).
func (s *Store) call(ctx context.Context, method, path string, in, out any) error {
	resp, err := s.doRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleErrorResponse reads an error response and returns an appropriate
// error. 404 maps to query.ErrNotFound and 401 to auth.ErrUnauthenticated.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	msg := string(body)
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}

	err := fmt.Errorf("API error (%d): %s", resp.StatusCode, msg)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", query.ErrNotFound, err)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", auth.ErrUnauthenticated, err)
	}
	return err
}

// queryResponse matches the API accounts query response.
type queryResponse struct {
	Accounts []query.Account `json:"accounts"`
	Total    int64           `json:"total"`
}

// idsResponse carries affected or assigned ids.
type idsResponse struct {
	IDs []int64 `json:"ids"`
}

// bulkUpdateRequest matches the API bulk update body.
type bulkUpdateRequest struct {
	IDs   []int64     `json:"ids"`
	Field query.Field `json:"field"`
	Value string      `json:"value"`
}

// bulkDeleteRequest matches the API bulk delete body.
type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// suggestionsResponse matches the API suggestions response.
type suggestionsResponse struct {
	Values []string `json:"values"`
}

// importRequest matches the API import body.
type importRequest struct {
	Accounts []query.Account `json:"accounts"`
}

func accountPath(id int64) string {
	return "/api/v1/accounts/" + strconv.FormatInt(id, 10)
}

func (s *Store) Query(ctx context.Context, q query.Query) ([]query.Account, int64, error) {
	var qr queryResponse
	if err := s.call(ctx, http.MethodPost, "/api/v1/accounts/query", q, &qr); err != nil {
		return nil, 0, err
	}
	return qr.Accounts, qr.Total, nil
}

func (s *Store) Get(ctx context.Context, _ string, id int64) (*query.Account, error) {
	var a query.Account
	if err := s.call(ctx, http.MethodGet, accountPath(id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) Update(ctx context.Context, _ string, id int64, p query.Patch) (*query.Account, error) {
	var a query.Account
	if err := s.call(ctx, http.MethodPatch, accountPath(id), p, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) UpdateByIDs(ctx context.Context, _ string, ids []int64, field query.Field, value string) ([]int64, error) {
	var ir idsResponse
	req := bulkUpdateRequest{IDs: ids, Field: field, Value: value}
	if err := s.call(ctx, http.MethodPost, "/api/v1/accounts/bulk-update", req, &ir); err != nil {
		return nil, err
	}
	return ir.IDs, nil
}

func (s *Store) DeleteByIDs(ctx context.Context, _ string, ids []int64) ([]int64, error) {
	var ir idsResponse
	if err := s.call(ctx, http.MethodPost, "/api/v1/accounts/bulk-delete", bulkDeleteRequest{IDs: ids}, &ir); err != nil {
		return nil, err
	}
	return ir.IDs, nil
}

func (s *Store) Distinct(ctx context.Context, _ string, field query.Field, contains string) ([]string, error) {
	path := "/api/v1/suggestions/" + url.PathEscape(string(field))
	if contains != "" {
		path += "?q=" + url.QueryEscape(contains)
	}
	var sr suggestionsResponse
	if err := s.call(ctx, http.MethodGet, path, nil, &sr); err != nil {
		return nil, err
	}
	return sr.Values, nil
}

func (s *Store) Insert(ctx context.Context, accounts []query.Account) ([]int64, error) {
	var ir idsResponse
	if err := s.call(ctx, http.MethodPost, "/api/v1/accounts", importRequest{Accounts: accounts}, &ir); err != nil {
		return nil, err
	}
	return ir.IDs, nil
}

// CurrentUser returns the owner bound to the configured credentials.
func (s *Store) CurrentUser(ctx context.Context) (auth.User, error) {
	var u auth.User
	if err := s.call(ctx, http.MethodGet, "/api/v1/session", nil, &u); err != nil {
		return auth.User{}, err
	}
	if u.Email == "" {
		return auth.User{}, auth.ErrUnauthenticated
	}
	return u, nil
}

// SignOut revokes the configured credentials on the server.
func (s *Store) SignOut(ctx context.Context) error {
	err := s.call(ctx, http.MethodDelete, "/api/v1/session", nil, nil)
	if errors.Is(err, auth.ErrUnauthenticated) {
		return nil
	}
	return err
}

// ExportStatus is one scheduled export as reported by the server.
type ExportStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	LastError string    `json:"last_error,omitempty"`
	Location  string    `json:"location,omitempty"`
}

type exportStatusResponse struct {
	Running bool           `json:"running"`
	Exports []ExportStatus `json:"exports"`
}

// ListExports fetches scheduled export status from the server.
func (s *Store) ListExports(ctx context.Context) ([]ExportStatus, error) {
	var sr exportStatusResponse
	if err := s.call(ctx, http.MethodGet, "/api/v1/exports/status", nil, &sr); err != nil {
		return nil, err
	}
	return sr.Exports, nil
}

// TriggerExport asks the server to run the named scheduled export now.
func (s *Store) TriggerExport(ctx context.Context, name string) error {
	return s.call(ctx, http.MethodPost, "/api/v1/exports/"+url.PathEscape(name), nil, nil)
}
