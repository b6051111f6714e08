package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/usernameweb/acctdash/internal/bulk"
	"github.com/usernameweb/acctdash/internal/export"
)

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// progressWriter returns stderr when it is a terminal, else io.Discard so
// piped output stays clean.
func progressWriter() io.Writer {
	if isTerminal(os.Stderr) {
		return os.Stderr
	}
	return io.Discard
}

// BulkProgress prints bulk status lines.
type BulkProgress struct {
	w         io.Writer
	label     string
	startTime time.Time
}

func NewBulkProgress(w io.Writer) *BulkProgress {
	return &BulkProgress{w: w}
}

func (p *BulkProgress) OnStart(label string, total int) {
	p.label = label
	p.startTime = time.Now()
	fmt.Fprintf(p.w, "%s: %d account(s)\n", label, total)
}

func (p *BulkProgress) OnStatus(status bulk.Status, detail string) {
	if p.startTime.IsZero() {
		p.startTime = time.Now()
	}
	switch status {
	case bulk.StatusProcessing:
		fmt.Fprintf(p.w, "  %s...\n", p.label)
	case bulk.StatusError:
		fmt.Fprintf(p.w, "  %s\n", detail)
	}
}

func (p *BulkProgress) OnComplete(succeeded, requested int) {
	if p.startTime.IsZero() {
		p.startTime = time.Now()
	}
	fmt.Fprintf(p.w, "  done: %d of %d in %s\n", succeeded, requested, formatDuration(time.Since(p.startTime)))
}

// ExportProgress prints one line per export stage.
type ExportProgress struct {
	w         io.Writer
	stages    []string
	startTime time.Time
}

func NewExportProgress(w io.Writer) *ExportProgress {
	return &ExportProgress{w: w}
}

func (p *ExportProgress) OnStart(title string, stages []string) {
	p.stages = stages
	p.startTime = time.Now()
	fmt.Fprintln(p.w, title)
}

func (p *ExportProgress) OnStage(stage export.Stage, status export.StageStatus, percent float64) {
	if p.startTime.IsZero() {
		p.startTime = time.Now()
	}
	label := fmt.Sprintf("stage %d", int(stage)+1)
	if int(stage) < len(p.stages) {
		label = p.stages[stage]
	}
	switch status {
	case export.StageProcessing:
		fmt.Fprintf(p.w, "  [%3.0f%%] %s\n", percent*100, label)
	case export.StageError:
		fmt.Fprintf(p.w, "  [fail] %s\n", label)
	}
}

func (p *ExportProgress) OnComplete(res *export.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(p.w, "  [100%%] done in %s\n", formatDuration(time.Since(p.startTime)))
}

// formatDuration formats a duration as "1h 2m", "2m 3s" or "3s".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
