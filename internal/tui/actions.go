package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/usernameweb/acctdash/internal/bulk"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/grid"
)

// Flash texts for action preconditions.
const (
	msgSelectFirst  = "Please select accounts first"
	msgSelectExport = "Please select accounts to export"
	msgNoData       = "No data to export"
	msgBusy         = "Another operation is still running"
	msgNoExportDest = "No export destination configured"
)

// startBulk runs op over the selection off the update loop, relaying the
// step's status to the notification line. The UI stays gated until
// bulkDoneMsg arrives.
func (m Model) startBulk(op bulk.Operation) (Model, tea.Cmd) {
	if m.busy {
		return m.showFlash(msgBusy)
	}
	req, err := m.ctl.BulkRequest(op)
	if errors.Is(err, grid.ErrNothingSelected) {
		return m.showFlash(msgSelectFirst)
	}
	if err != nil {
		return m.showFlash(bulk.ErrorMessage(op, err))
	}

	events := make(chan tea.Msg, 8)
	exec := bulk.NewExecutor(m.backend).
		WithLogger(m.logger).
		WithProgress(bulkReporter{events: events})
	ctx, owner := m.ctx, m.owner
	go func() {
		defer close(events)
		res, err := exec.Execute(ctx, owner, req)
		events <- bulkDoneMsg{op: op, res: res, err: err}
	}()

	m.busy = true
	m.bulkStatus = bulk.StatusPending
	m.bulkDetail = op.Label()
	m.bulkEvents = events
	spin := m.startSpinner()
	return m, tea.Batch(spin, waitForEvents(events))
}

// bulkReporter forwards the bulk step's status changes to the update loop.
type bulkReporter struct {
	events chan<- tea.Msg
}

func (r bulkReporter) OnStart(string, int) {}

func (r bulkReporter) OnStatus(status bulk.Status, detail string) {
	r.events <- bulkStatusMsg{status: status, detail: detail}
}

func (r bulkReporter) OnComplete(int, int) {}

// exportReporter forwards export progress to the update loop.
type exportReporter struct {
	events chan<- tea.Msg
}

func (r exportReporter) OnStart(title string, stages []string) {
	r.events <- exportStartMsg{title: title, stages: stages}
}

func (r exportReporter) OnStage(stage export.Stage, status export.StageStatus, percent float64) {
	r.events <- exportStageMsg{stage: stage, status: status, percent: percent}
}

func (r exportReporter) OnComplete(*export.Result) {}

// waitForEvents reads the next progress event. It returns nil once the
// worker goroutine has closed the channel.
func waitForEvents(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

// startExport exports the selected rows in format, streaming stage updates
// into the progress modal.
func (m Model) startExport(format export.Format) (Model, tea.Cmd) {
	if m.busy {
		return m.showFlash(msgBusy)
	}
	if m.dest == nil {
		return m.showFlash(msgNoExportDest)
	}
	req, err := m.ctl.ExportRequest(format)
	if err != nil {
		return m.showFlash(msgSelectExport)
	}

	events := make(chan tea.Msg, export.StageCount*3+2)
	exp := export.NewExporter(m.backend, m.ctl.Classifier()).
		WithProfile(m.profile).
		WithDestination(m.dest).
		WithLogger(m.logger).
		WithProgress(exportReporter{events: events})
	ctx, owner := m.ctx, m.owner
	go func() {
		defer close(events)
		res, err := exp.Export(ctx, owner, req)
		events <- exportDoneMsg{res: res, err: err}
	}()

	m.busy = true
	m.modal = modalExportProgress
	m.exportTitle = fmt.Sprintf("Exporting %d accounts", len(req.IDs))
	m.exportStages = nil
	m.exportStage = export.StageFetch
	m.exportStatus = export.StagePending
	m.exportPercent = 0
	m.exportEvents = events
	spin := m.startSpinner()
	return m, tea.Batch(spin, waitForEvents(events))
}

// finishExport closes the progress modal and reports the outcome.
func (m Model) finishExport(msg exportDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.exportEvents = nil
	m.modal = modalNone

	var empty *export.ExportEmptyError
	switch {
	case errors.As(msg.err, &empty):
		return m.showFlash(msgNoData)
	case errors.Is(msg.err, export.ErrNoSelection):
		return m.showFlash(msgSelectExport)
	case msg.err != nil:
		m.logger.Warn("export failed", "error", msg.err)
		return m.showFlash("Export failed: " + msg.err.Error())
	}

	var b strings.Builder
	b.WriteString(msg.res.Message())
	if msg.res.Location != "" {
		b.WriteString("\n\n" + msg.res.Location)
	}
	if msg.res.Simplified {
		b.WriteString("\n\nWritten with the simplified column layout.")
	}
	m.modal = modalExportResult
	m.modalResult = b.String()
	return m, nil
}
