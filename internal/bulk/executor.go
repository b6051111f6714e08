// Package bulk runs batched mutations over a selection of accounts.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/usernameweb/acctdash/internal/query"
)

var (
	// ErrNoSelection is returned when a bulk request carries no IDs.
	ErrNoSelection = errors.New("no accounts selected")

	// ErrEmptyValue is returned when an update would write an empty value.
	ErrEmptyValue = errors.New("value must not be empty")
)

// Kind is the kind of bulk mutation.
type Kind int

const (
	KindUpdate Kind = iota
	KindDelete
)

// Operation describes what a bulk request does to every selected account.
type Operation struct {
	Kind  Kind
	Field query.Field // KindUpdate only
	Value string      // KindUpdate only
}

// Update sets field to value on every selected account.
func Update(field query.Field, value string) Operation {
	return Operation{Kind: KindUpdate, Field: field, Value: value}
}

// Delete removes every selected account.
func Delete() Operation {
	return Operation{Kind: KindDelete}
}

// Label names the operation for progress and logs.
func (o Operation) Label() string {
	if o.Kind == KindDelete {
		return "delete accounts"
	}
	return "update " + string(o.Field)
}

// Request is an operation applied to a set of account IDs.
type Request struct {
	Operation Operation
	IDs       []int64
}

// Status is the state of the single logical step of a bulk run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Progress reports bulk progress.
type Progress interface {
	OnStart(label string, total int)
	OnStatus(status Status, detail string)
	OnComplete(succeeded, requested int)
}

// NullProgress is a no-op progress reporter.
type NullProgress struct{}

func (NullProgress) OnStart(label string, total int)       {}
func (NullProgress) OnStatus(status Status, detail string) {}
func (NullProgress) OnComplete(succeeded, requested int)   {}

// Result reports how many of the requested accounts were changed. Fewer
// affected than requested is a partial success, not an error.
type Result struct {
	Operation   Operation
	Requested   int
	AffectedIDs []int64
}

// Succeeded returns the number of affected accounts.
func (r Result) Succeeded() int {
	return len(r.AffectedIDs)
}

// Partial reports whether some requested accounts were not affected.
func (r Result) Partial() bool {
	return r.Succeeded() < r.Requested
}

// Message renders the success notice shown after a run.
func (r Result) Message() string {
	verb := "updated"
	if r.Operation.Kind == KindDelete {
		verb = "deleted"
	}
	msg := fmt.Sprintf("Successfully %s %d account(s)", verb, r.Succeeded())
	if r.Partial() {
		msg += fmt.Sprintf(" (%d of %d requested)", r.Succeeded(), r.Requested)
	}
	return msg
}

// ErrorMessage renders the failure notice for op.
func ErrorMessage(op Operation, err error) string {
	if op.Kind == KindDelete {
		return "Error deleting accounts: " + query.Cause(err)
	}
	return fmt.Sprintf("Error updating %s: %s", op.Field, query.Cause(err))
}

// Executor performs bulk operations against a backend.
type Executor struct {
	backend  query.Backend
	logger   *slog.Logger
	progress Progress
}

// NewExecutor creates a bulk executor.
func NewExecutor(backend query.Backend) *Executor {
	return &Executor{
		backend:  backend,
		logger:   slog.Default(),
		progress: NullProgress{},
	}
}

// WithLogger sets the logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// WithProgress sets the progress reporter.
func (e *Executor) WithProgress(p Progress) *Executor {
	e.progress = p
	return e
}

// Validate checks a request without executing it and returns it normalized:
// duplicate IDs removed, update values trimmed.
func Validate(req Request) (Request, error) {
	if len(req.IDs) == 0 {
		return req, ErrNoSelection
	}
	seen := make(map[int64]bool, len(req.IDs))
	ids := make([]int64, 0, len(req.IDs))
	for _, id := range req.IDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	req.IDs = ids

	switch req.Operation.Kind {
	case KindUpdate:
		if _, err := query.ParseField(string(req.Operation.Field)); err != nil {
			return req, err
		}
		req.Operation.Value = strings.TrimSpace(req.Operation.Value)
		if req.Operation.Value == "" {
			return req, ErrEmptyValue
		}
	case KindDelete:
	default:
		return req, fmt.Errorf("unknown bulk operation kind %d", req.Operation.Kind)
	}
	return req, nil
}

// Execute runs req for owner as one batched backend call. On error nothing
// is committed and the returned error is a *query.RemoteMutationError
// (or a validation error before any call was made).
func (e *Executor) Execute(ctx context.Context, owner string, req Request) (Result, error) {
	if strings.TrimSpace(owner) == "" {
		return Result{}, query.ErrNoTenant
	}
	req, err := Validate(req)
	if err != nil {
		return Result{Operation: req.Operation, Requested: len(req.IDs)}, err
	}

	op := req.Operation
	res := Result{Operation: op, Requested: len(req.IDs)}
	label := op.Label()

	e.progress.OnStart(label, res.Requested)
	e.progress.OnStatus(StatusPending, label)

	e.logger.Info("executing bulk operation",
		"operation", label,
		"owner", owner,
		"requested", res.Requested,
	)

	start := time.Now()
	e.progress.OnStatus(StatusProcessing, fmt.Sprintf("%s: %d account(s)", label, res.Requested))

	var affected []int64
	if op.Kind == KindDelete {
		affected, err = e.backend.DeleteByIDs(ctx, owner, req.IDs)
	} else {
		affected, err = e.backend.UpdateByIDs(ctx, owner, req.IDs, op.Field, op.Value)
	}
	if err != nil {
		e.logger.Warn("bulk operation failed", "operation", label, "error", err)
		mErr := &query.RemoteMutationError{Op: label, Err: err}
		e.progress.OnStatus(StatusError, ErrorMessage(op, mErr))
		return res, mErr
	}

	res.AffectedIDs = affected
	e.progress.OnStatus(StatusSuccess, res.Message())
	e.progress.OnComplete(res.Succeeded(), res.Requested)

	e.logger.Info("bulk operation complete",
		"operation", label,
		"requested", res.Requested,
		"affected", res.Succeeded(),
		"duration", time.Since(start),
	)
	return res, nil
}
