package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/usernameweb/acctdash/internal/bulk"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/query"
)

// ErrNothingSelected is returned when an action needs at least one checked row.
var ErrNothingSelected = errors.New("no accounts selected")

// Empty-state texts shown in place of rows.
const (
	EmptyText = "No accounts found"
	ErrorText = "Error loading accounts"
)

// LoadRequest is an immutable snapshot of the state a fetch runs against.
type LoadRequest struct {
	Gen   uint64
	State query.FilterState
}

// LoadResult is the outcome of a fetch, tagged with its request generation.
type LoadResult struct {
	Gen   uint64
	State query.FilterState
	Rows  []query.Account
	Total int64
	Err   error
}

// SuggestRequest is a suggestion lookup for one field.
type SuggestRequest struct {
	Gen   uint64
	Field query.Field
	Term  string
}

// SuggestResult carries suggestion values for one field.
type SuggestResult struct {
	Gen    uint64
	Field  query.Field
	Values []string
	Err    error
}

// Controller owns one session's grid state. It is not safe for concurrent
// use: mutate it from a single goroutine and run Fetch/FetchSuggestions
// elsewhere, feeding results back through Apply/ApplySuggestions. Results
// from superseded requests are dropped, so the latest issued load wins.
type Controller struct {
	backend    query.Backend
	classifier *duration.Classifier
	owner      string
	logger     *slog.Logger

	state       query.FilterState
	rows        []query.Account
	pagination  Pagination
	selection   *Selection
	loadErr     error
	loading     bool
	suggestions map[query.Field][]string

	gen        uint64
	suggestGen map[query.Field]uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithClassifier sets the duration classifier.
func WithClassifier(c *duration.Classifier) Option {
	return func(ctl *Controller) { ctl.classifier = c }
}

// WithPageSize sets the initial page size.
func WithPageSize(n int) Option {
	return func(ctl *Controller) { ctl.state.SetPageSize(n) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// NewController creates a controller for owner's accounts.
func NewController(backend query.Backend, owner string, opts ...Option) *Controller {
	c := &Controller{
		backend:     backend,
		classifier:  duration.New(),
		owner:       owner,
		logger:      slog.Default(),
		state:       query.NewFilterState(query.DefaultPageSize),
		selection:   NewSelection(nil),
		suggestions: make(map[query.Field][]string),
		suggestGen:  make(map[query.Field]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pagination = Paginate(0, c.state.PageSize, 1)
	return c
}

func (c *Controller) Owner() string                    { return c.owner }
func (c *Controller) State() query.FilterState         { return c.state }
func (c *Controller) Rows() []query.Account            { return c.rows }
func (c *Controller) Pagination() Pagination           { return c.pagination }
func (c *Controller) Selection() *Selection            { return c.selection }
func (c *Controller) Classifier() *duration.Classifier { return c.classifier }
func (c *Controller) Loading() bool                    { return c.loading }

// Err returns the error of the last applied load, if any.
func (c *Controller) Err() error { return c.loadErr }

// EmptyText returns the placeholder for an empty grid, or "" when rows exist.
func (c *Controller) EmptyText() string {
	if c.loadErr != nil {
		return ErrorText
	}
	if len(c.rows) == 0 {
		return EmptyText
	}
	return ""
}

// BeginLoad starts a new load generation and snapshots the current state.
func (c *Controller) BeginLoad() LoadRequest {
	c.gen++
	c.loading = true
	return LoadRequest{Gen: c.gen, State: c.state}
}

// Fetch executes req against the backend. It reads only immutable
// controller fields and may run on any goroutine.
func (c *Controller) Fetch(ctx context.Context, req LoadRequest) LoadResult {
	res := LoadResult{Gen: req.Gen, State: req.State}

	q, err := query.Build(req.State, c.owner)
	if err != nil {
		res.Err = err
		return res
	}
	rows, count, err := c.backend.Query(ctx, q)
	if err != nil {
		res.Err = &query.RemoteQueryError{Op: "load accounts", Err: err}
		return res
	}

	if req.State.Duration != duration.BucketNone {
		filtered := query.FilterByDuration(rows, req.State.Duration, c.classifier)
		res.Total = int64(len(filtered))
		res.Rows = query.Slice(filtered, req.State.Offset(), req.State.PageSize)
		return res
	}
	res.Rows = rows
	res.Total = count
	return res
}

// Apply installs a load result. It returns false, changing nothing, when the
// result belongs to a superseded generation.
func (c *Controller) Apply(res LoadResult) bool {
	if res.Gen != c.gen {
		c.logger.Debug("dropping stale load", "gen", res.Gen, "current", c.gen)
		return false
	}
	c.loading = false

	if res.Err != nil {
		c.logger.Warn("load accounts failed", "error", res.Err)
		c.loadErr = res.Err
		c.rows = nil
		c.pagination = Paginate(0, res.State.PageSize, res.State.Page)
		c.selection.Reset(nil)
		return true
	}

	c.loadErr = nil
	c.rows = res.Rows
	c.pagination = Paginate(res.Total, res.State.PageSize, res.State.Page)
	c.pagination.Filtered = res.State.HasFilters()

	ids := make([]int64, len(res.Rows))
	for i, a := range res.Rows {
		ids[i] = a.ID
	}
	c.selection.Reset(ids)
	return true
}

// Reload runs a synchronous load and applies it.
func (c *Controller) Reload(ctx context.Context) error {
	c.Apply(c.Fetch(ctx, c.BeginLoad()))
	return c.loadErr
}

// BeginSuggest starts a suggestion lookup for field.
func (c *Controller) BeginSuggest(field query.Field, term string) SuggestRequest {
	c.suggestGen[field]++
	return SuggestRequest{Gen: c.suggestGen[field], Field: field, Term: term}
}

// FetchSuggestions runs a suggestion lookup. Safe on any goroutine.
func (c *Controller) FetchSuggestions(ctx context.Context, req SuggestRequest) SuggestResult {
	values, err := c.backend.Distinct(ctx, c.owner, req.Field, req.Term)
	if err != nil {
		err = &query.RemoteQueryError{Op: "load " + string(req.Field) + " suggestions", Err: err}
	}
	return SuggestResult{Gen: req.Gen, Field: req.Field, Values: values, Err: err}
}

// ApplySuggestions installs suggestions unless a newer lookup for the same
// field has been issued.
func (c *Controller) ApplySuggestions(res SuggestResult) bool {
	if res.Gen != c.suggestGen[res.Field] {
		return false
	}
	if res.Err != nil {
		c.logger.Warn("load suggestions failed", "field", res.Field, "error", res.Err)
		c.suggestions[res.Field] = nil
		return true
	}
	c.suggestions[res.Field] = res.Values
	return true
}

// Suggestions returns the last applied suggestions for field.
func (c *Controller) Suggestions(field query.Field) []string {
	return c.suggestions[field]
}

// BulkRequest snapshots the selection as a bulk request for op.
func (c *Controller) BulkRequest(op bulk.Operation) (bulk.Request, error) {
	if !c.selection.ActionsEnabled() {
		return bulk.Request{}, ErrNothingSelected
	}
	return bulk.Request{Operation: op, IDs: c.selection.IDs()}, nil
}

// FinishBulk records a bulk outcome. On failure the selection and filters
// are kept so the user can retry; on success the selection is cleared and
// the caller must reload.
func (c *Controller) FinishBulk(err error) {
	if err != nil {
		return
	}
	c.selection.Clear()
}

// RunBulk executes op over the selection and reloads on success.
func (c *Controller) RunBulk(ctx context.Context, exec *bulk.Executor, op bulk.Operation) (bulk.Result, error) {
	req, err := c.BulkRequest(op)
	if err != nil {
		return bulk.Result{}, err
	}
	res, err := exec.Execute(ctx, c.owner, req)
	c.FinishBulk(err)
	if err != nil {
		return res, err
	}
	if err := c.Reload(ctx); err != nil {
		return res, fmt.Errorf("reload after bulk: %w", err)
	}
	return res, nil
}

// ExportRequest snapshots the filters and selection for an export.
func (c *Controller) ExportRequest(format export.Format) (export.Request, error) {
	if !c.selection.ActionsEnabled() {
		return export.Request{}, ErrNothingSelected
	}
	return export.Request{Format: format, Filters: c.state, IDs: c.selection.IDs()}, nil
}

// Edit applies a patch to one account. The caller reloads afterwards.
func (c *Controller) Edit(ctx context.Context, id int64, p query.Patch) (*query.Account, error) {
	if p.IsEmpty() {
		return c.backend.Get(ctx, c.owner, id)
	}
	a, err := c.backend.Update(ctx, c.owner, id, p)
	if err != nil {
		if errors.Is(err, query.ErrNotFound) {
			return nil, err
		}
		return nil, &query.RemoteMutationError{Op: "update account", Err: err}
	}
	return a, nil
}

// DeleteOne removes one account and steps back a page when the current page
// would otherwise be left empty. The caller reloads afterwards.
func (c *Controller) DeleteOne(ctx context.Context, id int64) error {
	affected, err := c.backend.DeleteByIDs(ctx, c.owner, []int64{id})
	if err != nil {
		return &query.RemoteMutationError{Op: "delete account", Err: err}
	}
	if len(affected) == 0 {
		return query.ErrNotFound
	}
	page := c.state.Page
	if page > 1 && int64((page-1)*c.state.PageSize) >= c.pagination.Total-1 {
		c.state.SetPage(page - 1)
	}
	return nil
}
