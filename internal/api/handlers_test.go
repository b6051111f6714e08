package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/usernameweb/acctdash/internal/query"
	"github.com/usernameweb/acctdash/internal/query/querytest"
	"github.com/usernameweb/acctdash/internal/testutil"
)

const otherOwner = "other@example.com"

func newTestServerWithBackend(t *testing.T) (*Server, *querytest.MemoryBackend) {
	t.Helper()

	backend := querytest.NewMemoryBackend(
		testutil.NewAccount(1).WithUsername("alice").WithGroup("alpha").WithTag("vip").CreatedDaysAgo(0).Build(),
		testutil.NewAccount(2).WithUsername("bob").WithGroup("beta").CreatedDaysAgo(3).Build(),
		testutil.NewAccount(3).WithUsername("carol").WithGroup("alpha").CreatedDaysAgo(40).Build(),
		testutil.NewAccount(4).WithUsername("mallory").WithOwner(otherOwner).WithGroup("alpha").Build(),
	)

	srv := NewServer(testConfig(), backend, newMockScheduler(), nil, testLogger(),
		WithClassifier(testutil.Classifier()))
	return srv, backend
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	testutil.MustNoErr(t, err, "marshal body")
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response (%d %s): %v", w.Code, w.Body.String(), err)
	}
	return v
}

func accountIDs(rows []query.Account) []int64 {
	ids := make([]int64, len(rows))
	for i, a := range rows {
		ids[i] = a.ID
	}
	return ids
}

func TestHandleQuery(t *testing.T) {
	srv, backend := newTestServerWithBackend(t)

	w := serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts/query", query.Query{
		Group: "alpha",
		Range: &query.Range{Offset: 0, Limit: 10},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[QueryResponse](t, w)
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
	testutil.AssertEqualSlices(t, accountIDs(resp.Accounts), 3, 1)

	// The owner comes from the session, never the body.
	calls := backend.Calls()
	if got := calls[len(calls)-1].Query.OwnerEmail; got != testutil.Owner {
		t.Errorf("backend owner = %q", got)
	}
}

func TestHandleQueryOwnerMismatch(t *testing.T) {
	srv, backend := newTestServerWithBackend(t)

	w := serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts/query", query.Query{OwnerEmail: otherOwner}))
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if backend.CallCount("Query") != 0 {
		t.Error("backend queried for another owner")
	}

	// Case differences are the same owner.
	w = serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts/query", query.Query{OwnerEmail: "OWNER@example.com"}))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestHandleQueryEmptyIsArray(t *testing.T) {
	srv, _ := newTestServerWithBackend(t)

	w := serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts/query", query.Query{Search: "nobody"}))
	if !strings.Contains(w.Body.String(), `"accounts":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandleQueryRejectsUnknownFields(t *testing.T) {
	srv, _ := newTestServerWithBackend(t)

	req := httptest.NewRequest("POST", "/api/v1/accounts/query", strings.NewReader(`{"owner":"x"}`))
	if w := serve(t, srv, req); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleGetAccount(t *testing.T) {
	srv, _ := newTestServerWithBackend(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"own account", "/api/v1/accounts/1", http.StatusOK},
		{"other owner", "/api/v1/accounts/4", http.StatusNotFound},
		{"missing", "/api/v1/accounts/99", http.StatusNotFound},
		{"invalid id", "/api/v1/accounts/abc", http.StatusBadRequest},
		{"zero id", "/api/v1/accounts/0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, srv, httptest.NewRequest("GET", tt.path, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/accounts/1", nil))
	if a := decode[query.Account](t, w); a.Username != "alice" {
		t.Errorf("account = %+v", a)
	}
}

func TestHandleUpdateAccount(t *testing.T) {
	srv, backend := newTestServerWithBackend(t)

	note := "rotated cookies"
	w := serve(t, srv, jsonRequest(t, "PATCH", "/api/v1/accounts/2", query.Patch{Note: &note}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if a := decode[query.Account](t, w); a.Note != note || a.Username != "bob" {
		t.Errorf("account = %+v", a)
	}

	if w := serve(t, srv, jsonRequest(t, "PATCH", "/api/v1/accounts/2", query.Patch{})); w.Code != http.StatusBadRequest {
		t.Errorf("empty patch status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if w := serve(t, srv, jsonRequest(t, "PATCH", "/api/v1/accounts/4", query.Patch{Note: &note})); w.Code != http.StatusNotFound {
		t.Errorf("other owner status = %d, want %d", w.Code, http.StatusNotFound)
	}

	// owner_email is not a patchable field
	req := httptest.NewRequest("PATCH", "/api/v1/accounts/2", strings.NewReader(`{"owner_email":"x@example.com"}`))
	if w := serve(t, srv, req); w.Code != http.StatusBadRequest {
		t.Errorf("owner patch status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	backend.UpdateErr = errors.New("disk full")
	if w := serve(t, srv, jsonRequest(t, "PATCH", "/api/v1/accounts/2", query.Patch{Note: &note})); w.Code != http.StatusInternalServerError {
		t.Errorf("backend failure status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleDeleteAccount(t *testing.T) {
	srv, backend := newTestServerWithBackend(t)

	if w := serve(t, srv, httptest.NewRequest("DELETE", "/api/v1/accounts/2", nil)); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if w := serve(t, srv, httptest.NewRequest("DELETE", "/api/v1/accounts/2", nil)); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := serve(t, srv, httptest.NewRequest("DELETE", "/api/v1/accounts/4", nil)); w.Code != http.StatusNotFound {
		t.Errorf("other owner delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
	testutil.AssertEqualSlices(t, accountIDs(backend.All()), 1, 3, 4)
}

func TestHandleBulkUpdate(t *testing.T) {
	srv, backend := newTestServerWithBackend(t)

	w := serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts/bulk-update", BulkUpdateRequest{
		IDs:   []int64{1, 2, 4, 2},
		Field: query.FieldTag,
		Value: "  promo ",
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[IDsResponse](t, w)
	testutil.AssertEqualSlices(t, resp.IDs, 1, 2)

	calls := backend.Calls()
	last := calls[len(calls)-1]
	if diff := cmp.Diff([]int64{1, 2, 4}, last.IDs); diff != "" {
		t.Errorf("deduplicated ids mismatch (-want +got):\n%s", diff)
	}
	if last.Value != "promo" {
		t.Errorf("value = %q, want trimmed", last.Value)
	}

	tests := []struct {
		name string
		body BulkUpdateRequest
	}{
		{"no ids", BulkUpdateRequest{Field: query.FieldTag, Value: "x"}},
		{"empty value", BulkUpdateRequest{IDs: []int64{1}, Field: query.FieldTag, Value: "  "}},
		{"bad field", BulkUpdateRequest{IDs: []int64{1}, Field: "note", Value: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts/bulk-update", tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleBulkDelete(t *testing.T) {
	srv, backend := newTestServerWithBackend(t)

	w := serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts/bulk-delete", BulkDeleteRequest{IDs: []int64{1, 3, 4}}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	testutil.AssertEqualSlices(t, decode[IDsResponse](t, w).IDs, 1, 3)
	testutil.AssertEqualSlices(t, accountIDs(backend.All()), 2, 4)

	backend.DeleteErr = errors.New("locked")
	w = serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts/bulk-delete", BulkDeleteRequest{IDs: []int64{2}}))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("backend failure status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleImport(t *testing.T) {
	srv, backend := newTestServerWithBackend(t)

	w := serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts", ImportRequest{Accounts: []query.Account{
		{ID: 77, Username: "dave", OwnerEmail: ""},
		{Username: "erin", OwnerEmail: "Owner@Example.com"},
	}}))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	ids := decode[IDsResponse](t, w).IDs
	if len(ids) != 2 {
		t.Fatalf("ids = %v", ids)
	}
	for _, a := range backend.All() {
		if (a.Username == "dave" || a.Username == "erin") && a.OwnerEmail != testutil.Owner {
			t.Errorf("%s owner = %q", a.Username, a.OwnerEmail)
		}
		if a.ID == 77 {
			t.Error("client-supplied id was kept")
		}
	}

	w = serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts", ImportRequest{Accounts: []query.Account{
		{Username: "eve", OwnerEmail: otherOwner},
	}}))
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign owner status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = serve(t, srv, jsonRequest(t, "POST", "/api/v1/accounts", ImportRequest{}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty import status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleSuggestions(t *testing.T) {
	srv, _ := newTestServerWithBackend(t)

	w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/suggestions/group", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	testutil.AssertStrings(t, decode[SuggestionsResponse](t, w).Values, "alpha", "beta")

	w = serve(t, srv, httptest.NewRequest("GET", "/api/v1/suggestions/group?q=ET", nil))
	testutil.AssertStrings(t, decode[SuggestionsResponse](t, w).Values, "beta")

	w = serve(t, srv, httptest.NewRequest("GET", "/api/v1/suggestions/tag?q=zzz", nil))
	if !strings.Contains(w.Body.String(), `"values":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}

	if w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/suggestions/note", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("bad field status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleGrid(t *testing.T) {
	srv, _ := newTestServerWithBackend(t)

	w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/grid?page_size=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[GridResponse](t, w)
	if resp.Total != 3 || resp.TotalPages != 2 || resp.Page != 1 {
		t.Errorf("pagination = total %d pages %d page %d", resp.Total, resp.TotalPages, resp.Page)
	}
	if len(resp.Rows) != 2 || resp.Rows[0].ID != 3 {
		t.Errorf("rows = %+v", resp.Rows)
	}
	if resp.Summary != "Showing 1 to 2 of 3 entries" {
		t.Errorf("summary = %q", resp.Summary)
	}

	// The duration filter runs server-side with exact totals.
	w = serve(t, srv, httptest.NewRequest("GET", "/api/v1/grid?duration=2-7", nil))
	resp = decode[GridResponse](t, w)
	if resp.Total != 1 || len(resp.Rows) != 1 || resp.Rows[0].Username != "bob" {
		t.Fatalf("duration grid = %+v", resp)
	}
	if resp.Rows[0].Age != "3 Days" || !resp.Filtered {
		t.Errorf("row age = %q filtered = %v", resp.Rows[0].Age, resp.Filtered)
	}

	w = serve(t, srv, httptest.NewRequest("GET", "/api/v1/grid?search=nobody", nil))
	if resp := decode[GridResponse](t, w); resp.EmptyText != "No accounts found" {
		t.Errorf("empty text = %q", resp.EmptyText)
	}

	for _, q := range []string{"duration=7-14", "page=x", "page_size=x"} {
		if w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/grid?"+q, nil)); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", q, w.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleGridBackendError(t *testing.T) {
	srv, backend := newTestServerWithBackend(t)
	backend.QueryErr = errors.New("connection reset")

	if w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/grid", nil)); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleExportCSV(t *testing.T) {
	srv, _ := newTestServerWithBackend(t)

	w := serve(t, srv, jsonRequest(t, "POST", "/api/v1/export", ExportRequest{
		Format: "csv",
		IDs:    []int64{1, 2, 4},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="accounts.csv"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if n := w.Header().Get("X-Export-Count"); n != "2" {
		t.Errorf("X-Export-Count = %q, want 2 (other owner excluded)", n)
	}
	body := w.Body.String()
	testutil.AssertContainsAll(t, body, `"alice"`, `"bob"`)
	if strings.Contains(body, "mallory") {
		t.Error("export leaked another owner's account")
	}
}

func TestHandleExportXLSX(t *testing.T) {
	srv, _ := newTestServerWithBackend(t)

	w := serve(t, srv, jsonRequest(t, "POST", "/api/v1/export", ExportRequest{Format: "xlsx", All: true}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Error("xlsx body is not a zip archive")
	}
	if n := w.Header().Get("X-Export-Count"); n != "3" {
		t.Errorf("X-Export-Count = %q, want 3", n)
	}
}

func TestHandleExportErrors(t *testing.T) {
	srv, _ := newTestServerWithBackend(t)

	tests := []struct {
		name       string
		body       ExportRequest
		wantStatus int
		wantCode   string
	}{
		{"no selection", ExportRequest{Format: "csv"}, http.StatusBadRequest, "no_selection"},
		{"bad format", ExportRequest{Format: "pdf", All: true}, http.StatusBadRequest, "invalid_format"},
		{"no data", ExportRequest{Format: "csv", IDs: []int64{4}}, http.StatusUnprocessableEntity, "no_data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, srv, jsonRequest(t, "POST", "/api/v1/export", tt.body))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp := decode[ErrorResponse](t, w); resp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestErrorResponseShape(t *testing.T) {
	srv, _ := newTestServerWithBackend(t)

	w := serve(t, srv, httptest.NewRequest("GET", "/api/v1/accounts/invalid", nil))

	resp := decode[ErrorResponse](t, w)
	if resp.Error == "" {
		t.Error("expected error code in response")
	}
	if resp.Message == "" {
		t.Error("expected error message in response")
	}
}
