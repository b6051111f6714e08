package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/usernameweb/acctdash/internal/auth"
	"github.com/usernameweb/acctdash/internal/query"
	"github.com/usernameweb/acctdash/internal/testutil/ptr"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"https", Config{URL: "https://dash:8080", APIKey: "key"}, ""},
		{"http insecure opt-in", Config{URL: "http://dash:8080", AllowInsecure: true}, ""},
		{"http rejected", Config{URL: "http://dash:8080", APIKey: "key"}, "HTTPS required"},
		{"empty url", Config{APIKey: "key"}, "remote URL is required"},
		{"bad scheme", Config{URL: "ftp://dash:8080"}, "http or https"},
		{"no host", Config{URL: "https://"}, "must include a host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if tt.wantErr == "" {
				if err != nil || s == nil {
					t.Fatalf("New() = %v, %v", s, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_TrimsTrailingSlashAndDefaultsTimeout(t *testing.T) {
	s, err := New(Config{URL: "https://dash:8080/", APIKey: "key"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.baseURL != "https://dash:8080" {
		t.Errorf("baseURL = %q", s.baseURL)
	}
	if s.httpClient.Timeout == 0 {
		t.Error("httpClient.Timeout should have a default, got 0")
	}
}

// newTestStore creates a Store pointing at the given httptest server.
func newTestStore(srv *httptest.Server, apiKey string) *Store {
	return &Store{
		baseURL:    srv.URL,
		httpClient: newHTTPClient(srv.Client(), apiKey),
	}
}

func TestDoRequest_SetsBearerToken(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestStore(srv, "secret-key").doRequest(context.Background(), "GET", "/test", nil)
	if err != nil {
		t.Fatalf("doRequest error = %v", err)
	}
	resp.Body.Close()
}

func TestDoRequest_OmitsAuthWhenNoKey(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization should be empty, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestStore(srv, "").doRequest(context.Background(), "GET", "/test", nil)
	if err != nil {
		t.Fatalf("doRequest error = %v", err)
	}
	resp.Body.Close()
}

func TestHandleErrorResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains []string
		is       error
	}{
		{"json body", 500, `{"error":"db_error","message":"database locked"}`, []string{"500", "database locked"}, nil},
		{"plain body", 502, "bad gateway", []string{"502", "bad gateway"}, nil},
		{"not found", 404, `{"error":"not_found","message":"Account 42 not found"}`, []string{"Account 42 not found"}, query.ErrNotFound},
		{"unauthorized", 401, `{"error":"unauthorized","message":"Invalid or missing API key"}`, []string{"401"}, auth.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handleErrorResponse(&http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(tt.body))})
			if err == nil {
				t.Fatal("handleErrorResponse should return error")
			}
			for _, want := range tt.contains {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q should contain %q", err, want)
				}
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error %v is not %v", err, tt.is)
			}
		})
	}
}

// fakeServer serves a minimal version of the accounts API for round trips.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("POST /api/v1/accounts/query", func(w http.ResponseWriter, r *http.Request) {
		var q query.Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Errorf("decode query: %v", err)
		}
		if q.Search != "budi" || q.Range == nil || q.Range.Limit != 15 {
			t.Errorf("query = %+v", q)
		}
		writeJSON(w, map[string]any{
			"accounts": []query.Account{{ID: 9, Username: "budi", OwnerEmail: q.OwnerEmail}},
			"total":    31,
		})
	})
	mux.HandleFunc("GET /api/v1/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "9" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found","message":"Account not found"}`))
			return
		}
		writeJSON(w, query.Account{ID: 9, Username: "budi"})
	})
	mux.HandleFunc("PATCH /api/v1/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		var p query.Patch
		_ = json.NewDecoder(r.Body).Decode(&p)
		if p.Note == nil || *p.Note != "hi" || p.Group != nil {
			t.Errorf("patch = %+v", p)
		}
		writeJSON(w, query.Account{ID: 9, Note: *p.Note})
	})
	mux.HandleFunc("POST /api/v1/accounts/bulk-update", func(w http.ResponseWriter, r *http.Request) {
		var req bulkUpdateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Field != query.FieldTag || req.Value != "warm" {
			t.Errorf("bulk update = %+v", req)
		}
		writeJSON(w, idsResponse{IDs: req.IDs[:1]})
	})
	mux.HandleFunc("POST /api/v1/accounts/bulk-delete", func(w http.ResponseWriter, r *http.Request) {
		var req bulkDeleteRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, idsResponse{IDs: req.IDs})
	})
	mux.HandleFunc("GET /api/v1/suggestions/{field}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("field") != "group" || r.URL.Query().Get("q") != "v i" {
			t.Errorf("suggestions path = %s", r.URL)
		}
		writeJSON(w, suggestionsResponse{Values: []string{"vip", "vivid"}})
	})
	mux.HandleFunc("POST /api/v1/accounts", func(w http.ResponseWriter, r *http.Request) {
		var req importRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		ids := make([]int64, len(req.Accounts))
		for i := range ids {
			ids[i] = int64(100 + i)
		}
		writeJSON(w, idsResponse{IDs: ids})
	})
	mux.HandleFunc("GET /api/v1/session", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, auth.User{Email: "owner@example.com", Method: "api_key"})
	})
	mux.HandleFunc("DELETE /api/v1/session", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/v1/exports/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, exportStatusResponse{Running: true, Exports: []ExportStatus{{Name: "nightly", Schedule: "0 2 * * *"}}})
	})
	mux.HandleFunc("POST /api/v1/exports/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "nightly" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{"status": "accepted"})
	})
	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStore_RoundTrips(t *testing.T) {
	s := newTestStore(fakeServer(t), "key")
	ctx := context.Background()
	owner := "owner@example.com"

	rows, total, err := s.Query(ctx, query.Query{OwnerEmail: owner, Search: "budi", Range: &query.Range{Limit: 15}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 31 || len(rows) != 1 || rows[0].OwnerEmail != owner {
		t.Errorf("Query = %+v, %d", rows, total)
	}

	a, err := s.Get(ctx, owner, 9)
	if err != nil || a.Username != "budi" {
		t.Errorf("Get = %+v, %v", a, err)
	}
	if _, err := s.Get(ctx, owner, 10); !errors.Is(err, query.ErrNotFound) {
		t.Errorf("Get missing err = %v", err)
	}

	a, err = s.Update(ctx, owner, 9, query.Patch{Note: ptr.String("hi")})
	if err != nil || a.Note != "hi" {
		t.Errorf("Update = %+v, %v", a, err)
	}

	ids, err := s.UpdateByIDs(ctx, owner, []int64{3, 4}, query.FieldTag, "warm")
	if err != nil {
		t.Fatalf("UpdateByIDs: %v", err)
	}
	if diff := cmp.Diff([]int64{3}, ids); diff != "" {
		t.Errorf("UpdateByIDs mismatch (-want +got):\n%s", diff)
	}

	ids, err = s.DeleteByIDs(ctx, owner, []int64{5, 6})
	if err != nil || len(ids) != 2 {
		t.Errorf("DeleteByIDs = %v, %v", ids, err)
	}

	values, err := s.Distinct(ctx, owner, query.FieldGroup, "v i")
	if err != nil {
		t.Fatalf("Distinct: %v", err)
	}
	if diff := cmp.Diff([]string{"vip", "vivid"}, values); diff != "" {
		t.Errorf("Distinct mismatch (-want +got):\n%s", diff)
	}

	ids, err = s.Insert(ctx, []query.Account{{Username: "a"}, {Username: "b"}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if diff := cmp.Diff([]int64{100, 101}, ids); diff != "" {
		t.Errorf("Insert mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_Session(t *testing.T) {
	s := newTestStore(fakeServer(t), "key")
	ctx := context.Background()

	u, err := s.CurrentUser(ctx)
	if err != nil || u.Email != "owner@example.com" {
		t.Fatalf("CurrentUser = %+v, %v", u, err)
	}
	if err := s.SignOut(ctx); err != nil {
		t.Errorf("SignOut: %v", err)
	}
}

func TestStore_Exports(t *testing.T) {
	s := newTestStore(fakeServer(t), "key")
	ctx := context.Background()

	exports, err := s.ListExports(ctx)
	if err != nil || len(exports) != 1 || exports[0].Name != "nightly" {
		t.Fatalf("ListExports = %+v, %v", exports, err)
	}
	if err := s.TriggerExport(ctx, "nightly"); err != nil {
		t.Errorf("TriggerExport: %v", err)
	}
	if err := s.TriggerExport(ctx, "missing"); !errors.Is(err, query.ErrNotFound) {
		t.Errorf("TriggerExport(missing) err = %v", err)
	}
}

func TestStore_ErrorPropagates(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"store_error","message":"database locked"}`))
	}))
	defer srv.Close()

	_, _, err := newTestStore(srv, "key").Query(context.Background(), query.Query{OwnerEmail: "o@example.com"})
	if err == nil || !strings.Contains(err.Error(), "database locked") {
		t.Errorf("Query err = %v", err)
	}
}
