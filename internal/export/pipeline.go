// Package export turns a selection of accounts into XLSX or CSV files.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/query"
)

// ErrNoSelection is returned when an export request selects no accounts.
var ErrNoSelection = errors.New("no accounts selected for export")

// ExportEmptyError reports that nothing was left to export after filtering.
// It is informational: no file is produced.
type ExportEmptyError struct {
	Matched  int // rows matching the filters
	Selected int // IDs requested
}

func (e *ExportEmptyError) Error() string {
	return "no data to export"
}

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown export format %q (want xlsx or csv)", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Stage is one step of an export run.
type Stage int

const (
	StageFetch Stage = iota
	StageTransform
	StageSerialize
	StageFinalize
	stageCount
)

// StageCount is the number of stages in every run.
const StageCount = int(stageCount)

// Label returns the progress text shown while the stage runs.
func (s Stage) Label(f Format) string {
	switch s {
	case StageFetch:
		return "Fetching account data..."
	case StageTransform:
		return "Processing export data..."
	case StageSerialize:
		return fmt.Sprintf("Generating %s file...", strings.ToUpper(string(f)))
	default:
		return "Preparing download..."
	}
}

// Percent returns the completion ratio reported when the stage starts.
func (s Stage) Percent() float64 {
	return float64(s) / float64(StageCount)
}

// StageStatus is the state of a stage.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageProcessing StageStatus = "processing"
	StageSuccess    StageStatus = "success"
	StageError      StageStatus = "error"
)

// Progress reports export progress.
type Progress interface {
	OnStart(title string, stages []string)
	OnStage(stage Stage, status StageStatus, percent float64)
	OnComplete(res *Result)
}

// NullProgress is a no-op progress reporter.
type NullProgress struct{}

func (NullProgress) OnStart(title string, stages []string)                    {}
func (NullProgress) OnStage(stage Stage, status StageStatus, percent float64) {}
func (NullProgress) OnComplete(res *Result)                                   {}

// Request selects what to export.
type Request struct {
	Format  Format
	Filters query.FilterState
	// IDs restricts the export to these accounts. Required unless All is set.
	IDs []int64
	// All exports every row matching Filters.
	All bool
}

// Result describes a finished export.
type Result struct {
	JobID       string
	Format      Format
	Filename    string
	ContentType string
	Count       int
	Data        []byte
	// Location is where the destination stored the file, if one is configured.
	Location string
	// Simplified reports that the XLSX fallback schema was used.
	Simplified bool
}

// Message renders the success notice.
func (r *Result) Message() string {
	return fmt.Sprintf("Successfully exported %d account(s) to %s", r.Count, strings.ToUpper(string(r.Format)))
}

// Exporter runs the four-stage export pipeline.
type Exporter struct {
	backend    query.Backend
	classifier *duration.Classifier
	profile    Profile
	dest       Destination
	logger     *slog.Logger
	progress   Progress
	now        func() time.Time
}

// NewExporter creates an exporter.
func NewExporter(backend query.Backend, classifier *duration.Classifier) *Exporter {
	return &Exporter{
		backend:    backend,
		classifier: classifier,
		profile:    DefaultProfile,
		logger:     slog.Default(),
		progress:   NullProgress{},
		now:        time.Now,
	}
}

// WithProfile sets the XLSX schema constants.
func (e *Exporter) WithProfile(p Profile) *Exporter {
	e.profile = p
	return e
}

// WithDestination stores finished files in d.
func (e *Exporter) WithDestination(d Destination) *Exporter {
	e.dest = d
	return e
}

// WithLogger sets the logger.
func (e *Exporter) WithLogger(logger *slog.Logger) *Exporter {
	e.logger = logger
	return e
}

// WithProgress sets the progress reporter.
func (e *Exporter) WithProgress(p Progress) *Exporter {
	e.progress = p
	return e
}

// Export runs fetch, transform, serialize and finalize for owner.
func (e *Exporter) Export(ctx context.Context, owner string, req Request) (*Result, error) {
	if req.Format == "" {
		req.Format = FormatXLSX
	}
	if _, err := ParseFormat(string(req.Format)); err != nil {
		return nil, err
	}
	if !req.All && len(req.IDs) == 0 {
		return nil, ErrNoSelection
	}

	stages := make([]string, StageCount)
	for i := range stages {
		stages[i] = Stage(i).Label(req.Format)
	}
	title := "Exporting all matching accounts"
	if !req.All {
		title = fmt.Sprintf("Exporting %d accounts", len(req.IDs))
	}
	e.progress.OnStart(title, stages)

	res := &Result{
		JobID:       uuid.NewString(),
		Format:      req.Format,
		ContentType: req.Format.ContentType(),
	}
	log := e.logger.With("job", res.JobID, "format", req.Format)

	// Fetch
	e.begin(StageFetch)
	q, err := query.BuildExport(req.Filters, owner)
	if err != nil {
		return nil, e.fail(StageFetch, err)
	}
	rows, _, err := e.backend.Query(ctx, q)
	if err != nil {
		return nil, e.fail(StageFetch, &query.RemoteQueryError{Op: "fetch export data", Err: err})
	}
	rows = query.FilterByDuration(rows, req.Filters.Duration, e.classifier)
	e.done(StageFetch)

	// Transform
	e.begin(StageTransform)
	matched := len(rows)
	if !req.All {
		rows = restrict(rows, req.IDs)
	}
	if len(rows) == 0 {
		err := &ExportEmptyError{Matched: matched, Selected: len(req.IDs)}
		e.progress.OnStage(StageTransform, StageError, StageTransform.Percent())
		log.Info("export produced no rows", "matched", matched, "selected", len(req.IDs))
		return nil, err
	}
	res.Count = len(rows)
	e.done(StageTransform)

	// Serialize
	e.begin(StageSerialize)
	switch req.Format {
	case FormatCSV:
		res.Filename = CSVFilename
		res.Data = EncodeCSV(rows, e.classifier)
	default:
		records := make([]Record, len(rows))
		for i, a := range rows {
			records[i] = Record{Account: a, Cookie: TransformCookies(a.Cookies, e.profile.CookieDomain)}
		}
		res.Filename = XLSXFilename(e.profile.FilePrefix, e.now())
		res.Data, res.Simplified, err = EncodeXLSX(e.profile, records)
		if err != nil {
			return nil, e.fail(StageSerialize, err)
		}
		if res.Simplified {
			log.Warn("full XLSX schema failed, wrote simplified schema")
		}
	}
	e.done(StageSerialize)

	// Finalize
	e.begin(StageFinalize)
	if e.dest != nil {
		res.Location, err = e.dest.Put(ctx, res.Filename, res.ContentType, res.Data)
		if err != nil {
			return nil, e.fail(StageFinalize, err)
		}
	}
	e.done(StageFinalize)
	e.progress.OnComplete(res)

	log.Info("export complete", "count", res.Count, "file", res.Filename, "location", res.Location)
	return res, nil
}

func (e *Exporter) begin(s Stage) {
	e.progress.OnStage(s, StageProcessing, s.Percent())
}

func (e *Exporter) done(s Stage) {
	e.progress.OnStage(s, StageSuccess, float64(s+1)/float64(StageCount))
}

func (e *Exporter) fail(s Stage, err error) error {
	e.progress.OnStage(s, StageError, s.Percent())
	e.logger.Warn("export failed", "stage", s.Label(""), "error", err)
	return err
}

// restrict keeps rows whose ID is in ids, preserving row order.
func restrict(rows []query.Account, ids []int64) []query.Account {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := rows[:0:0]
	for _, a := range rows {
		if want[a.ID] {
			out = append(out, a)
		}
	}
	return out
}
