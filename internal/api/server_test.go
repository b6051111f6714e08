package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/usernameweb/acctdash/internal/auth"
	"github.com/usernameweb/acctdash/internal/config"
	"github.com/usernameweb/acctdash/internal/query/querytest"
	"github.com/usernameweb/acctdash/internal/scheduler"
	"github.com/usernameweb/acctdash/internal/testutil"
)

// testLogger returns a logger for tests that only shows errors
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockScheduler implements ExportScheduler for tests.
type mockScheduler struct {
	scheduled map[string]bool
	running   bool
	statuses  []ExportStatus
	triggerFn func(name string) error
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{
		scheduled: make(map[string]bool),
		running:   true,
	}
}

func (m *mockScheduler) IsScheduled(name string) bool {
	return m.scheduled[name]
}

func (m *mockScheduler) TriggerExport(name string) error {
	if m.triggerFn != nil {
		return m.triggerFn(name)
	}
	return nil
}

func (m *mockScheduler) Status() []ExportStatus {
	return m.statuses
}

func (m *mockScheduler) IsRunning() bool {
	return m.running
}

func testConfig() *config.Config {
	return &config.Config{
		Account: config.AccountConfig{Email: testutil.Owner},
		Server:  config.ServerConfig{APIPort: 8080},
		Display: config.DisplayConfig{PageSize: 15},
	}
}

func keyGuard(key string) *auth.Guard {
	return &auth.Guard{
		Verifier:    auth.NewAPIKeyVerifier(key, testutil.Owner),
		Revocations: auth.NewRevocations(time.Hour),
	}
}

func serve(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(testConfig(), nil, newMockScheduler(), keyGuard("k"), testLogger())

	w := serve(t, srv, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("health status = %q, want 'ok'", resp["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv := NewServer(testConfig(), querytest.NewMemoryBackend(), newMockScheduler(), keyGuard("secret-key"), testLogger())

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{"no auth", "", "", http.StatusUnauthorized},
		{"wrong key", "Authorization", "wrong-key", http.StatusUnauthorized},
		{"correct key", "Authorization", "secret-key", http.StatusOK},
		{"bearer prefix", "Authorization", "Bearer secret-key", http.StatusOK},
		{"lowercase bearer", "Authorization", "bearer secret-key", http.StatusOK},
		{"x-api-key header", "X-API-Key", "secret-key", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/suggestions/group", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := serve(t, srv, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuthMiddlewareNoGuard(t *testing.T) {
	srv := NewServer(testConfig(), querytest.NewMemoryBackend(), newMockScheduler(), nil, testLogger())

	// Without a guard every request acts as the configured account.
	w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/session", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d when no guard configured", w.Code, http.StatusOK)
	}
	var u auth.User
	if err := json.NewDecoder(w.Body).Decode(&u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Email != testutil.Owner || u.Method != "local" {
		t.Errorf("user = %+v", u)
	}

	// No configured owner means nobody to act as.
	cfg := testConfig()
	cfg.Account.Email = ""
	srv = NewServer(cfg, querytest.NewMemoryBackend(), newMockScheduler(), nil, testLogger())
	if w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/session", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d without owner", w.Code, http.StatusUnauthorized)
	}
}

func TestSessionSignOut(t *testing.T) {
	srv := NewServer(testConfig(), querytest.NewMemoryBackend(), newMockScheduler(), keyGuard("secret-key"), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w := serve(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /session status = %d", w.Code)
	}
	var u auth.User
	if err := json.NewDecoder(w.Body).Decode(&u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Email != testutil.Owner || u.Method != "api_key" {
		t.Errorf("user = %+v", u)
	}

	req = httptest.NewRequest("DELETE", "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	if w := serve(t, srv, req); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE /session status = %d, want %d", w.Code, http.StatusNoContent)
	}

	req = httptest.NewRequest("GET", "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	if w := serve(t, srv, req); w.Code != http.StatusUnauthorized {
		t.Errorf("after sign-out status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestExportStatusEndpoint(t *testing.T) {
	sched := newMockScheduler()
	sched.statuses = []ExportStatus{
		{
			Name:     "nightly",
			Schedule: "0 2 * * *",
			NextRun:  time.Now().Add(time.Hour),
		},
	}
	srv := NewServer(testConfig(), nil, sched, nil, testLogger())

	w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/exports/status", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp ExportStatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Running {
		t.Error("expected scheduler to be running")
	}
	if len(resp.Exports) != 1 || resp.Exports[0].Name != "nightly" {
		t.Errorf("exports = %+v", resp.Exports)
	}
}

func TestExportStatusNilScheduler(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil, nil, testLogger())

	w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/exports/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// exports must be an empty array, not null
	if !strings.Contains(w.Body.String(), `"exports":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}

	req := httptest.NewRequest("POST", "/api/v1/exports/nightly", nil)
	if w := serve(t, srv, req); w.Code != http.StatusNotFound {
		t.Errorf("trigger status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestTriggerExport(t *testing.T) {
	tests := []struct {
		name       string
		export     string
		err        error
		wantStatus int
	}{
		{"accepted", "nightly", nil, http.StatusAccepted},
		{"unknown", "other", nil, http.StatusNotFound},
		{"already running", "nightly", scheduler.ErrAlreadyRunning, http.StatusConflict},
		{"stopped", "nightly", scheduler.ErrStopped, http.StatusServiceUnavailable},
		{"generic failure", "nightly", errors.New("boom"), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := newMockScheduler()
			sched.scheduled["nightly"] = true
			var triggered string
			sched.triggerFn = func(name string) error {
				triggered = name
				return tt.err
			}
			srv := NewServer(testConfig(), nil, sched, nil, testLogger())

			w := serve(t, srv, httptest.NewRequest("POST", "/api/v1/exports/"+tt.export, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusAccepted && triggered != "nightly" {
				t.Errorf("triggered = %q", triggered)
			}
		})
	}
}

func TestNilBackendReturns503(t *testing.T) {
	srv := NewServer(testConfig(), nil, newMockScheduler(), nil, testLogger())

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/accounts/query"},
		{"GET", "/api/v1/accounts/1"},
		{"GET", "/api/v1/grid"},
		{"GET", "/api/v1/suggestions/group"},
		{"POST", "/api/v1/export"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := serve(t, srv, httptest.NewRequest(ep.method, ep.path, strings.NewReader("{}")))
			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("%s %s: status = %d, want %d", ep.method, ep.path, w.Code, http.StatusServiceUnavailable)
			}
		})
	}
}

func TestSecurityValidation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.ServerConfig
		wantError bool
	}{
		{"loopback no key", config.ServerConfig{BindAddr: "127.0.0.1"}, false},
		{"loopback 127.0.0.2 no key", config.ServerConfig{BindAddr: "127.0.0.2"}, false},
		{"ipv6 loopback no key", config.ServerConfig{BindAddr: "::1"}, false},
		{"localhost no key", config.ServerConfig{BindAddr: "localhost"}, false},
		{"empty addr no key", config.ServerConfig{BindAddr: ""}, false},
		{"non-loopback with key", config.ServerConfig{BindAddr: "0.0.0.0", APIKey: "secret"}, false},
		{"non-loopback with oidc", config.ServerConfig{BindAddr: "0.0.0.0", OIDCIssuer: "https://id.example.com"}, false},
		{"non-loopback no key", config.ServerConfig{BindAddr: "0.0.0.0"}, true},
		{"non-loopback ipv6 no key", config.ServerConfig{BindAddr: "::"}, true},
		{"non-loopback insecure override", config.ServerConfig{BindAddr: "0.0.0.0", AllowInsecure: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateSecure()
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateSecure() error = %v, wantError = %v", err, tt.wantError)
			}
		})
	}
}

func TestStartRejectsInsecureBind(t *testing.T) {
	cfg := testConfig()
	cfg.Server.BindAddr = "0.0.0.0"
	srv := NewServer(cfg, nil, nil, nil, testLogger())
	defer srv.rateLimiter.Close()

	if err := srv.Start(); !errors.Is(err, config.ErrInsecureServer) {
		t.Errorf("Start() = %v, want ErrInsecureServer", err)
	}
}

func TestCORSFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CORSOrigins = []string{"http://localhost:3000", "http://example.com"}
	srv := NewServer(cfg, nil, newMockScheduler(), nil, testLogger())

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(t, srv, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("expected CORS header for allowed origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}

	req2 := httptest.NewRequest("GET", "/health", nil)
	req2.Header.Set("Origin", "http://evil.com")
	w2 := serve(t, srv, req2)
	if w2.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("expected no CORS header for disallowed origin, got %q", w2.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSDisabledByDefault(t *testing.T) {
	srv := NewServer(testConfig(), nil, newMockScheduler(), nil, testLogger())

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(t, srv, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("expected no CORS header when no origins configured, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil, nil, testLogger())
	if err := srv.Shutdown(t.Context()); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
	// second Close on the limiter must not panic
	srv.rateLimiter.Close()
}
