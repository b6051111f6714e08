package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/usernameweb/acctdash/internal/bulk"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/grid"
	"github.com/usernameweb/acctdash/internal/query"
)

const maxIDs = 10000

type handlers struct {
	backend    query.Backend
	owner      string
	classifier *duration.Classifier
	profile    export.Profile
	dest       export.Destination
}

func newHandlers(backend query.Backend, owner string, opts Options) *handlers {
	h := &handlers{
		backend:    backend,
		owner:      owner,
		classifier: opts.Classifier,
		profile:    opts.Profile,
		dest:       opts.Destination,
	}
	if h.classifier == nil {
		h.classifier = duration.New()
	}
	if h.profile == (export.Profile{}) {
		h.profile = export.DefaultProfile
	}
	return h
}

// accountRow is an account as listed by list_accounts.
type accountRow struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"owner_email"`
	Group     string `json:"group"`
	Tag       string `json:"tag"`
	CreatedAt string `json:"created_at"`
	Age       string `json:"age"`
}

type listResult struct {
	Accounts   []accountRow `json:"accounts"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	TotalPages int          `json:"total_pages"`
	Summary    string       `json:"summary"`
}

type bulkResult struct {
	Requested int     `json:"requested"`
	Affected  []int64 `json:"affected_ids"`
	Message   string  `json:"message"`
}

type exportResult struct {
	JobID      string `json:"job_id"`
	Format     string `json:"format"`
	Count      int    `json:"count"`
	Location   string `json:"location,omitempty"`
	Simplified bool   `json:"simplified,omitempty"`
	Message    string `json:"message"`
}

// getIDArg extracts a required positive integer ID from the arguments map.
func getIDArg(args map[string]any, key string) (int64, error) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s parameter is required", key)
	}
	if v != math.Trunc(v) || v < 1 || v > math.MaxInt64 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return int64(v), nil
}

// getIDsArg extracts a list of positive integer IDs. JSON numbers arrive as
// float64.
func getIDsArg(args map[string]any, key string) ([]int64, error) {
	raw, ok := args[key].([]any)
	if !ok {
		return nil, nil
	}
	if len(raw) > maxIDs {
		return nil, fmt.Errorf("too many %s: %d (max %d)", key, len(raw), maxIDs)
	}
	ids := make([]int64, 0, len(raw))
	for _, item := range raw {
		v, ok := item.(float64)
		if !ok || v != math.Trunc(v) || v < 1 || v > math.MaxInt64 {
			return nil, fmt.Errorf("%s must contain positive integers", key)
		}
		ids = append(ids, int64(v))
	}
	return ids, nil
}

// intArg extracts an optional integer, with a default.
func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return int(v)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// optionalString returns a pointer when key is present, so empty strings
// can clear a field.
func optionalString(args map[string]any, key string) *string {
	s, ok := args[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// filtersArg builds grid filter state through the same setters the grid uses.
func filtersArg(args map[string]any) (query.FilterState, error) {
	st := query.NewFilterState(query.DefaultPageSize)
	st.SetPageSize(intArg(args, "page_size", query.DefaultPageSize))
	st.SetSearch(stringArg(args, "search"))
	st.SetGroup(stringArg(args, "group"))
	st.SetTag(stringArg(args, "tag"))
	b, err := duration.ParseBucket(stringArg(args, "duration"))
	if err != nil {
		return st, err
	}
	st.SetDuration(b)
	st.SetPage(intArg(args, "page", 1))
	return st, nil
}

func (h *handlers) listAccounts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := filtersArg(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ctl := grid.NewController(h.backend, h.owner, grid.WithClassifier(h.classifier))
	ctl.Apply(ctl.Fetch(ctx, grid.LoadRequest{State: st}))
	if err := ctl.Err(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %s", query.Cause(err))), nil
	}

	p := ctl.Pagination()
	out := listResult{
		Accounts:   make([]accountRow, 0, len(ctl.Rows())),
		Total:      p.Total,
		Page:       p.Current,
		TotalPages: p.TotalPages,
		Summary:    p.Summary(),
	}
	for _, a := range ctl.Rows() {
		out.Accounts = append(out.Accounts, accountRow{
			ID:        a.ID,
			Username:  a.Username,
			Email:     a.OwnerEmail,
			Group:     a.Group,
			Tag:       a.Tag,
			CreatedAt: h.classifier.FormatDate(a.CreatedAt),
			Age:       h.classifier.Display(a.CreatedAt),
		})
	}
	return jsonResult(out)
}

func (h *handlers) getAccount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := getIDArg(req.GetArguments(), "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := h.backend.Get(ctx, h.owner, id)
	if errors.Is(err, query.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("account %d not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get account failed: %v", err)), nil
	}
	return jsonResult(a)
}

func (h *handlers) suggestValues(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	field, err := query.ParseField(stringArg(args, "field"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	values, err := h.backend.Distinct(ctx, h.owner, field, strings.TrimSpace(stringArg(args, "q")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("suggestions failed: %v", err)), nil
	}
	if values == nil {
		values = []string{}
	}
	return jsonResult(values)
}

func (h *handlers) updateAccount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := getIDArg(args, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p := query.Patch{
		Username:  optionalString(args, "username"),
		UserAgent: optionalString(args, "user_agent"),
		Group:     optionalString(args, "group"),
		Tag:       optionalString(args, "tag"),
		Note:      optionalString(args, "note"),
	}
	if p.IsEmpty() {
		return mcp.NewToolResultError("nothing to update"), nil
	}
	a, err := h.backend.Update(ctx, h.owner, id, p)
	if errors.Is(err, query.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("account %d not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("update failed: %v", err)), nil
	}
	return jsonResult(a)
}

func (h *handlers) runBulk(ctx context.Context, op bulk.Operation, ids []int64) (*mcp.CallToolResult, error) {
	res, err := bulk.NewExecutor(h.backend).Execute(ctx, h.owner, bulk.Request{Operation: op, IDs: ids})
	if err != nil {
		return mcp.NewToolResultError(bulk.ErrorMessage(op, err)), nil
	}
	affected := res.AffectedIDs
	if affected == nil {
		affected = []int64{}
	}
	return jsonResult(bulkResult{Requested: res.Requested, Affected: affected, Message: res.Message()})
}

func (h *handlers) bulkUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	ids, err := getIDsArg(args, "ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	field, err := query.ParseField(stringArg(args, "field"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.runBulk(ctx, bulk.Update(field, stringArg(args, "value")), ids)
}

func (h *handlers) bulkDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if confirm, _ := args["confirm"].(bool); !confirm {
		return mcp.NewToolResultError("confirm must be true to delete accounts"), nil
	}
	ids, err := getIDsArg(args, "ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.runBulk(ctx, bulk.Delete(), ids)
}

func (h *handlers) exportAccounts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if h.dest == nil {
		return mcp.NewToolResultError("no export destination configured"), nil
	}
	format := export.FormatXLSX
	if f := stringArg(args, "format"); f != "" {
		var err error
		if format, err = export.ParseFormat(f); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	filters, err := filtersArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids, err := getIDsArg(args, "ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	all, _ := args["all"].(bool)

	exp := export.NewExporter(h.backend, h.classifier).
		WithProfile(h.profile).
		WithDestination(h.dest)
	res, err := exp.Export(ctx, h.owner, export.Request{Format: format, Filters: filters, IDs: ids, All: all})
	var empty *export.ExportEmptyError
	switch {
	case errors.Is(err, export.ErrNoSelection):
		return mcp.NewToolResultError("Please select accounts to export"), nil
	case errors.As(err, &empty):
		return mcp.NewToolResultError("No data to export"), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
	}

	return jsonResult(exportResult{
		JobID:      res.JobID,
		Format:     string(res.Format),
		Count:      res.Count,
		Location:   res.Location,
		Simplified: res.Simplified,
		Message:    res.Message(),
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
