package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-cmp/cmp"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/query"
	"github.com/usernameweb/acctdash/internal/query/querytest"
	"github.com/xuri/excelize/v2"
)

const owner = "owner@example.com"

var testNow = time.Date(2025, time.July, 17, 10, 20, 30, 0, time.UTC)

func testClassifier() *duration.Classifier {
	return duration.New(
		duration.WithLocation(time.UTC),
		duration.WithClock(func() time.Time { return testNow }),
	)
}

func seedBackend() *querytest.MemoryBackend {
	return querytest.NewMemoryBackend(
		query.Account{ID: 1, Username: "old", OwnerEmail: owner, Group: "g1", CreatedAt: "Rabu, 17 Juli 2024", UserAgent: "UA-1"},
		query.Account{ID: 2, Username: `say "hi"`, OwnerEmail: owner, Group: "g1", Tag: "warm", CreatedAt: "Kamis, 10 Juli 2025", UserAgent: "UA-2",
			Cookies: `{"cookies":[{"name":"SPC_EC","value":"x","domain":".shopee.co.id"}]}`},
		query.Account{ID: 3, Username: "fresh", OwnerEmail: owner, Group: "g2", CreatedAt: "Kamis, 17 Juli 2025", UserAgent: "UA-3"},
		query.Account{ID: 4, Username: "foreign", OwnerEmail: "other@example.com", Group: "g1", CreatedAt: "Kamis, 17 Juli 2025"},
	)
}

func newTestExporter(backend query.Backend) *Exporter {
	e := NewExporter(backend, testClassifier())
	e.now = func() time.Time { return testNow }
	return e
}

type recordingProgress struct {
	title    string
	stages   []string
	events   []string
	percents []float64
	result   *Result
}

func (p *recordingProgress) OnStart(title string, stages []string) {
	p.title = title
	p.stages = stages
}

func (p *recordingProgress) OnStage(stage Stage, status StageStatus, percent float64) {
	p.events = append(p.events, stage.Label("xlsx")+" "+string(status))
	p.percents = append(p.percents, percent)
}

func (p *recordingProgress) OnComplete(res *Result) { p.result = res }

func TestExport_XLSX(t *testing.T) {
	progress := &recordingProgress{}
	e := newTestExporter(seedBackend()).WithProgress(progress)

	res, err := e.Export(context.Background(), owner, Request{
		Format:  FormatXLSX,
		Filters: query.FilterState{Group: "g1", Page: 3, PageSize: 15},
		IDs:     []int64{2, 4, 99},
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if res.Count != 1 {
		t.Errorf("Count = %d, want 1", res.Count)
	}
	if res.Filename != "shopee_accounts_2025-07-17T10-20-30.xlsx" {
		t.Errorf("Filename = %q", res.Filename)
	}
	if res.Simplified {
		t.Error("Simplified = true, want full schema")
	}
	if res.JobID == "" {
		t.Error("JobID is empty")
	}
	if got := res.Message(); got != "Successfully exported 1 account(s) to XLSX" {
		t.Errorf("Message = %q", got)
	}

	wantStages := []string{
		"Fetching account data...",
		"Processing export data...",
		"Generating XLSX file...",
		"Preparing download...",
	}
	if diff := cmp.Diff(wantStages, progress.stages); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}
	if progress.title != "Exporting 3 accounts" {
		t.Errorf("title = %q", progress.title)
	}
	wantPercents := []float64{0, 0.25, 0.25, 0.5, 0.5, 0.75, 0.75, 1}
	if diff := cmp.Diff(wantPercents, progress.percents); diff != "" {
		t.Errorf("percents mismatch (-want +got):\n%s", diff)
	}
	if progress.result != res {
		t.Error("OnComplete not called with result")
	}

	f, err := excelize.OpenReader(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != SheetName {
		t.Errorf("sheets = %v", sheets)
	}
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if diff := cmp.Diff(Headers(false), rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	cell := func(header string) string {
		for i, h := range rows[0] {
			if h == header && i < len(rows[1]) {
				return rows[1][i]
			}
		}
		return ""
	}
	checks := map[string]string{
		"group":       "g1",
		"name":        `say "hi"`,
		"username":    `say "hi"`,
		"remark":      "warm",
		"platform":    "shopee.co.id",
		"proxytype":   "noproxy",
		"ipchecker":   "ip2location",
		"countrycode": "id",
		"ua":          "UA-2",
		"password":    "",
	}
	for header, want := range checks {
		if got := cell(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if c := cell("cookie"); !strings.HasPrefix(c, `[{"name":"SPC_EC"`) || !strings.Contains(c, `"sameSite":"unspecified"`) {
		t.Errorf("cookie = %q", c)
	}

	width, err := f.GetColWidth(SheetName, "J")
	if err != nil || width != 40 {
		t.Errorf("cookie column width = %v, %v; want 40", width, err)
	}
}

func TestExport_DurationFilterAppliedBeforeSelection(t *testing.T) {
	backend := seedBackend()
	e := newTestExporter(backend)

	res, err := e.Export(context.Background(), owner, Request{
		Format:  FormatCSV,
		Filters: query.FilterState{Duration: duration.BucketWeek, PageSize: 15, Page: 1},
		IDs:     []int64{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Count != 1 {
		t.Fatalf("Count = %d, want 1 (only the 7-day-old account)", res.Count)
	}

	calls := backend.Calls()
	if len(calls) != 1 || calls[0].Query.Range != nil {
		t.Errorf("fetch must be unpaginated: %+v", calls)
	}
}

func TestExport_CSV(t *testing.T) {
	res, err := newTestExporter(seedBackend()).Export(context.Background(), owner, Request{
		Format:  FormatCSV,
		Filters: query.NewFilterState(15),
		IDs:     []int64{1, 2},
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Filename != "accounts.csv" || res.ContentType != "text/csv" {
		t.Errorf("Filename = %q, ContentType = %q", res.Filename, res.ContentType)
	}

	want := strings.Join([]string{
		"ID,Username Shopee,User Agent,Email,Group,Tag,Created,Duration",
		`2,"say ""hi""","UA-2","owner@example.com","g1","warm","10 Jul 2025","7 Days"`,
		`1,"old","UA-1","owner@example.com","g1","","17 Jul 2024","1 Year"`,
	}, "\n")
	if diff := cmp.Diff(want, string(res.Data)); diff != "" {
		t.Errorf("CSV mismatch (-want +got):\n%s", diff)
	}
}

func TestExport_EmptyIntersection(t *testing.T) {
	dir := t.TempDir()
	progress := &recordingProgress{}
	e := newTestExporter(seedBackend()).
		WithProgress(progress).
		WithDestination(DirDestination{Dir: dir})

	_, err := e.Export(context.Background(), owner, Request{
		Format:  FormatXLSX,
		Filters: query.FilterState{Group: "g2", PageSize: 15, Page: 1},
		IDs:     []int64{1, 2},
	})

	var empty *ExportEmptyError
	if !errors.As(err, &empty) {
		t.Fatalf("err = %v, want ExportEmptyError", err)
	}
	if empty.Matched != 1 || empty.Selected != 2 {
		t.Errorf("ExportEmptyError = %+v", empty)
	}
	if progress.result != nil {
		t.Error("OnComplete called for empty export")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("files written for empty export: %v", entries)
	}
}

func TestExport_NoSelection(t *testing.T) {
	backend := seedBackend()
	_, err := newTestExporter(backend).Export(context.Background(), owner, Request{Format: FormatCSV, Filters: query.NewFilterState(15)})
	if !errors.Is(err, ErrNoSelection) {
		t.Errorf("err = %v, want ErrNoSelection", err)
	}
	if len(backend.Calls()) != 0 {
		t.Error("backend queried without a selection")
	}
}

func TestExport_AllMatching(t *testing.T) {
	res, err := newTestExporter(seedBackend()).Export(context.Background(), owner, Request{
		Format:  FormatCSV,
		Filters: query.NewFilterState(15),
		All:     true,
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Count != 3 {
		t.Errorf("Count = %d, want 3 (owner-scoped)", res.Count)
	}
}

func TestExport_FetchError(t *testing.T) {
	backend := seedBackend()
	backend.QueryErr = errors.New("boom")
	_, err := newTestExporter(backend).Export(context.Background(), owner, Request{Format: FormatXLSX, IDs: []int64{1}, Filters: query.NewFilterState(15)})
	var qErr *query.RemoteQueryError
	if !errors.As(err, &qErr) {
		t.Errorf("err = %v, want RemoteQueryError", err)
	}
}

func TestExport_FallsBackToSimplifiedSchema(t *testing.T) {
	orig := buildWorkbook
	t.Cleanup(func() { buildWorkbook = orig })
	buildWorkbook = func(p Profile, cols []column, records []Record) (*excelize.File, error) {
		if len(cols) == len(fullColumns) {
			return nil, errors.New("forced failure")
		}
		return orig(p, cols, records)
	}

	res, err := newTestExporter(seedBackend()).Export(context.Background(), owner, Request{
		Format: FormatXLSX, IDs: []int64{3}, Filters: query.NewFilterState(15),
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !res.Simplified {
		t.Error("Simplified = false, want fallback")
	}

	f, err := excelize.OpenReader(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows(SheetName)
	want := []string{"acc_id", "ids", "group", "name", "remark", "platform", "username", "password", "cookie", "countrycode", "ua"}
	if diff := cmp.Diff(want, rows[0]); diff != "" {
		t.Errorf("fallback header mismatch (-want +got):\n%s", diff)
	}
}

func TestDirDestination(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	res, err := newTestExporter(seedBackend()).
		WithDestination(DirDestination{Dir: dir}).
		Export(context.Background(), owner, Request{Format: FormatCSV, IDs: []int64{3}, Filters: query.NewFilterState(15)})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Location != filepath.Join(dir, "accounts.csv") {
		t.Errorf("Location = %q", res.Location)
	}
	data, err := os.ReadFile(res.Location)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, res.Data) {
		t.Error("written file differs from result data")
	}
}

func TestDirDestinationStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	loc, err := DirDestination{Dir: dir}.Put(context.Background(), "../../outside.csv", "text/csv", []byte("ID"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if loc != filepath.Join(dir, "outside.csv") {
		t.Errorf("location = %q, want inside %s", loc, dir)
	}
}

func TestRunDestination(t *testing.T) {
	dir := t.TempDir()
	now := testNow
	d := RunDestination{Dest: DirDestination{Dir: dir}, Job: "nightly", Now: func() time.Time { return now }}

	first, err := d.Put(context.Background(), CSVFilename, "text/csv", []byte("first"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	now = now.Add(24 * time.Hour)
	second, err := d.Put(context.Background(), CSVFilename, "text/csv", []byte("second"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	want := filepath.Join(dir, "nightly", testNow.UTC().Format(runStampLayout), CSVFilename)
	if first != want {
		t.Errorf("first = %q, want %q", first, want)
	}
	if first == second {
		t.Fatalf("two runs share %s", first)
	}
	for loc, body := range map[string]string{first: "first", second: "second"} {
		data, err := os.ReadFile(loc)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if string(data) != body {
			t.Errorf("%s = %q, want %q", loc, data, body)
		}
	}
}

func TestRunDestinationS3Key(t *testing.T) {
	fake := &fakeS3{}
	s3d := &S3Destination{client: fake, bucket: "exports", prefix: "acctdash", now: func() time.Time { return testNow }}
	d := RunDestination{Dest: s3d, Job: "team a/../x", Now: func() time.Time { return testNow }}

	loc, err := d.Put(context.Background(), CSVFilename, "text/csv", []byte("ID"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	want := "s3://exports/acctdash/2025/07/17/team_a_.._x/" + testNow.UTC().Format(runStampLayout) + "/accounts.csv"
	if loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}
}

func TestPathSegment(t *testing.T) {
	for in, want := range map[string]string{
		"nightly":   "nightly",
		" weekly ":  "weekly",
		"../evil":   "_evil",
		"a/b\\c":    "a_b_c",
		"":          "export",
		"...":       "export",
		"ok_v1.2-x": "ok_v1.2-x",
	} {
		if got := pathSegment(in); got != want {
			t.Errorf("pathSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(in.Body)
	f.body = buf.Bytes()
	return &s3.PutObjectOutput{}, nil
}

func TestS3Destination(t *testing.T) {
	fake := &fakeS3{}
	d := &S3Destination{client: fake, bucket: "exports", prefix: "acctdash", now: func() time.Time { return testNow }}

	loc, err := d.Put(context.Background(), "accounts.csv", "text/csv", []byte("ID"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if loc != "s3://exports/acctdash/2025/07/17/accounts.csv" {
		t.Errorf("location = %q", loc)
	}
	if aws.ToString(fake.input.Bucket) != "exports" || aws.ToString(fake.input.ContentType) != "text/csv" {
		t.Errorf("input = %+v", fake.input)
	}
	if string(fake.body) != "ID" {
		t.Errorf("body = %q", fake.body)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(" XLSX "); err != nil || f != FormatXLSX {
		t.Errorf("ParseFormat(XLSX) = %q, %v", f, err)
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("ParseFormat(pdf) expected error")
	}
}
