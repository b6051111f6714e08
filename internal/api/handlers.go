package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/usernameweb/acctdash/internal/auth"
	"github.com/usernameweb/acctdash/internal/bulk"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/grid"
	"github.com/usernameweb/acctdash/internal/query"
	"github.com/usernameweb/acctdash/internal/scheduler"
)

// maxBodyBytes bounds JSON request bodies; imports carry cookie payloads.
const maxBodyBytes = 32 << 20

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// QueryResponse is a page of accounts plus the exact match count.
type QueryResponse struct {
	Accounts []query.Account `json:"accounts"`
	Total    int64           `json:"total"`
}

// IDsResponse lists affected or assigned account IDs.
type IDsResponse struct {
	IDs []int64 `json:"ids"`
}

// BulkUpdateRequest sets one field on every listed account.
type BulkUpdateRequest struct {
	IDs   []int64     `json:"ids"`
	Field query.Field `json:"field"`
	Value string      `json:"value"`
}

// BulkDeleteRequest removes every listed account.
type BulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// ImportRequest carries new accounts.
type ImportRequest struct {
	Accounts []query.Account `json:"accounts"`
}

// SuggestionsResponse lists distinct filter values.
type SuggestionsResponse struct {
	Values []string `json:"values"`
}

// ExportRequest selects rows for a download.
type ExportRequest struct {
	Format  string            `json:"format"`
	Filters query.FilterState `json:"filters"`
	IDs     []int64           `json:"ids,omitempty"`
	All     bool              `json:"all,omitempty"`
}

// GridRow is an account with its derived display columns.
type GridRow struct {
	query.Account
	Age         string `json:"age"`
	CreatedDate string `json:"created_date"`
}

// GridResponse is one rendered grid page.
type GridResponse struct {
	Rows       []GridRow         `json:"rows"`
	State      query.FilterState `json:"state"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	Window     []int             `json:"window"`
	Summary    string            `json:"summary"`
	Filtered   bool              `json:"filtered"`
	EmptyText  string            `json:"empty_text,omitempty"`
}

// ExportStatusResponse represents scheduled export status.
type ExportStatusResponse struct {
	Running bool           `json:"running"`
	Exports []ExportStatus `json:"exports"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// owner returns the authenticated owner; authMiddleware guarantees one.
func owner(r *http.Request) string {
	u, _ := auth.UserFrom(r.Context())
	return u.Email
}

func sameOwner(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid_id", "Account ID must be a positive number")
		return 0, false
	}
	return id, true
}

// backendError maps a backend failure to a response.
func (s *Server) backendError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, query.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Account not found")
	case errors.Is(err, query.ErrNoTenant):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		s.logger.Error("backend request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to "+op)
	}
}

// handleSession returns the authenticated user.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	writeJSON(w, http.StatusOK, u)
}

// handleSignOut revokes the presented token.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token, _ := r.Context().Value(tokenKey{}).(string); token != "" && s.guard != nil {
		s.guard.SignOut(token)
		s.logger.Info("session signed out", "owner", owner(r))
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQuery runs a backend query scoped to the authenticated owner.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q query.Query
	if !decodeBody(w, r, &q) {
		return
	}
	if q.OwnerEmail != "" && !sameOwner(q.OwnerEmail, owner(r)) {
		writeError(w, http.StatusForbidden, "forbidden", "Query owner does not match the signed-in user")
		return
	}
	q.OwnerEmail = owner(r)
	q.Search = query.NormalizeSearch(q.Search)
	if q.Range != nil && (q.Range.Offset < 0 || q.Range.Limit < 0) {
		writeError(w, http.StatusBadRequest, "invalid_range", "Range offset and limit must not be negative")
		return
	}

	rows, total, err := s.backend.Query(r.Context(), q)
	if err != nil {
		s.backendError(w, "query accounts", err)
		return
	}
	if rows == nil {
		rows = []query.Account{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{Accounts: rows, Total: total})
}

// handleGetAccount returns a single account.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	a, err := s.backend.Get(r.Context(), owner(r), id)
	if err != nil {
		s.backendError(w, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleUpdateAccount applies a single-record patch.
func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var p query.Patch
	if !decodeBody(w, r, &p) {
		return
	}
	if p.IsEmpty() {
		writeError(w, http.StatusBadRequest, "empty_patch", "Nothing to update")
		return
	}
	a, err := s.backend.Update(r.Context(), owner(r), id, p)
	if err != nil {
		s.backendError(w, "update account", err)
		return
	}
	s.logger.Info("account updated via API", "id", id, "owner", owner(r))
	writeJSON(w, http.StatusOK, a)
}

// handleDeleteAccount removes a single account.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	ids, err := s.backend.DeleteByIDs(r.Context(), owner(r), []int64{id})
	if err != nil {
		s.backendError(w, "delete account", err)
		return
	}
	if len(ids) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "Account not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runBulk executes op through the bulk executor and writes the affected IDs.
func (s *Server) runBulk(w http.ResponseWriter, r *http.Request, op bulk.Operation, ids []int64) {
	exec := bulk.NewExecutor(s.backend).WithLogger(s.logger)
	res, err := exec.Execute(r.Context(), owner(r), bulk.Request{Operation: op, IDs: ids})
	if err != nil {
		var mErr *query.RemoteMutationError
		if errors.As(err, &mErr) {
			s.backendError(w, op.Label(), err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	affected := res.AffectedIDs
	if affected == nil {
		affected = []int64{}
	}
	writeJSON(w, http.StatusOK, IDsResponse{IDs: affected})
}

// handleBulkUpdate sets group or tag on many accounts at once.
func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req BulkUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runBulk(w, r, bulk.Update(req.Field, req.Value), req.IDs)
}

// handleBulkDelete removes many accounts at once.
func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runBulk(w, r, bulk.Delete(), req.IDs)
}

// handleImport inserts new accounts for the authenticated owner. Records
// without an owner are assigned to the caller.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Accounts) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "No accounts to import")
		return
	}
	me := owner(r)
	for i := range req.Accounts {
		a := &req.Accounts[i]
		if a.OwnerEmail == "" {
			a.OwnerEmail = me
		} else if !sameOwner(a.OwnerEmail, me) {
			writeError(w, http.StatusForbidden, "forbidden",
				fmt.Sprintf("Account %d belongs to another owner", i+1))
			return
		}
		a.OwnerEmail = me
		a.ID = 0
	}
	ids, err := s.backend.Insert(r.Context(), req.Accounts)
	if err != nil {
		s.backendError(w, "import accounts", err)
		return
	}
	s.logger.Info("accounts imported via API", "count", len(ids), "owner", me)
	writeJSON(w, http.StatusCreated, IDsResponse{IDs: ids})
}

// handleSuggestions lists distinct group or tag values.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	field, err := query.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_field", err.Error())
		return
	}
	values, err := s.backend.Distinct(r.Context(), owner(r), field, strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		s.backendError(w, "list suggestions", err)
		return
	}
	if values == nil {
		values = []string{}
	}
	writeJSON(w, http.StatusOK, SuggestionsResponse{Values: values})
}

// gridState reads filter and page parameters the same way the grid's
// setters apply them.
func gridState(r *http.Request, defaultPageSize int) (query.FilterState, error) {
	v := r.URL.Query()
	st := query.NewFilterState(defaultPageSize)
	if n := v.Get("page_size"); n != "" {
		size, err := strconv.Atoi(n)
		if err != nil {
			return st, fmt.Errorf("page_size must be a number")
		}
		st.SetPageSize(size)
	}
	st.SetSearch(v.Get("search"))
	st.SetGroup(v.Get("group"))
	st.SetTag(v.Get("tag"))
	bucket, err := duration.ParseBucket(v.Get("duration"))
	if err != nil {
		return st, err
	}
	st.SetDuration(bucket)
	if p := v.Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil {
			return st, fmt.Errorf("page must be a number")
		}
		st.SetPage(page)
	}
	return st, nil
}

// handleGrid renders one grid page, applying the duration filter on the
// server so browsers get exact totals.
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	st, err := gridState(r, s.cfg.Display.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctl := grid.NewController(s.backend, owner(r),
		grid.WithClassifier(s.classifier),
		grid.WithLogger(s.logger))
	res := ctl.Fetch(r.Context(), grid.LoadRequest{State: st})
	ctl.Apply(res)
	if err := ctl.Err(); err != nil {
		s.backendError(w, "load accounts", err)
		return
	}

	p := ctl.Pagination()
	resp := GridResponse{
		Rows:       make([]GridRow, len(res.Rows)),
		State:      st,
		Total:      p.Total,
		Page:       p.Current,
		TotalPages: p.TotalPages,
		Window:     p.Window,
		Summary:    p.Summary(),
		Filtered:   p.Filtered,
		EmptyText:  ctl.EmptyText(),
	}
	for i, a := range res.Rows {
		resp.Rows[i] = GridRow{
			Account:     a,
			Age:         s.classifier.Display(a.CreatedAt),
			CreatedDate: s.classifier.FormatDate(a.CreatedAt),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport streams an XLSX or CSV file.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Format == "" {
		req.Format = string(export.FormatXLSX)
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_format", err.Error())
		return
	}
	if _, err := duration.ParseBucket(string(req.Filters.Duration)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	exp := export.NewExporter(s.backend, s.classifier).
		WithProfile(s.profile).
		WithLogger(s.logger)
	res, err := exp.Export(r.Context(), owner(r), export.Request{
		Format:  format,
		Filters: req.Filters,
		IDs:     req.IDs,
		All:     req.All,
	})
	var empty *export.ExportEmptyError
	switch {
	case errors.Is(err, export.ErrNoSelection):
		writeError(w, http.StatusBadRequest, "no_selection", "Please select accounts to export")
		return
	case errors.As(err, &empty):
		writeError(w, http.StatusUnprocessableEntity, "no_data", "No data to export")
		return
	case err != nil:
		s.backendError(w, "export accounts", err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("X-Export-Count", strconv.Itoa(res.Count))
	w.Header().Set("X-Export-Job", res.JobID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// handleExportStatus returns the scheduled export status.
func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, ExportStatusResponse{Exports: []ExportStatus{}})
		return
	}
	statuses := s.scheduler.Status()
	if statuses == nil {
		statuses = []ExportStatus{}
	}
	writeJSON(w, http.StatusOK, ExportStatusResponse{
		Running: s.scheduler.IsRunning(),
		Exports: statuses,
	})
}

// handleTriggerExport manually runs a scheduled export.
func (s *Server) handleTriggerExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.scheduler == nil || !s.scheduler.IsScheduled(name) {
		writeError(w, http.StatusNotFound, "not_found", "Export not scheduled: "+name)
		return
	}

	err := s.scheduler.TriggerExport(name)
	switch {
	case errors.Is(err, scheduler.ErrNotScheduled):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	case errors.Is(err, scheduler.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "scheduler_stopped", err.Error())
		return
	case err != nil:
		s.logger.Error("failed to trigger export", "name", name, "error", err)
		writeError(w, http.StatusConflict, "export_error", err.Error())
		return
	}

	s.logger.Info("export triggered via API", "name", name)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Export started for " + name,
	})
}
