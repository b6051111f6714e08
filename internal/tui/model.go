// Package tui provides the interactive account dashboard.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/usernameweb/acctdash/internal/bulk"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/grid"
	"github.com/usernameweb/acctdash/internal/query"
)

// Options configures the dashboard.
type Options struct {
	Owner       string
	Version     string
	PageSize    int
	Classifier  *duration.Classifier
	Profile     export.Profile
	Destination export.Destination // where exports are written; required for e/c
	Logger      *slog.Logger
}

// modalType represents the type of modal dialog.
type modalType int

const (
	modalNone modalType = iota
	modalFilter
	modalBulkValue
	modalDuration
	modalDeleteConfirm
	modalExportProgress
	modalExportResult
	modalQuitConfirm
	modalHelp
)

// Model is the main TUI model following the Elm architecture.
type Model struct {
	// Grid state lives in the controller; the model only drives it.
	ctl      *grid.Controller
	backend  query.Backend
	owner    string
	version  string
	profile  export.Profile
	dest     export.Destination
	logger   *slog.Logger
	ctx      context.Context
	pageSize int // rows the terminal can show

	cursor       int
	scrollOffset int

	// Terminal dimensions
	width  int
	height int

	// Loading state
	loading       bool
	spinnerFrame  int
	spinnerActive bool

	// Inline search bar
	searchActive   bool
	searchInput    textinput.Model
	searchDebounce uint64 // increment to cancel pending debounce timers

	// Modal state
	modal       modalType
	modalCursor int // -1 selects the typed value in suggestion modals
	promptInput textinput.Model
	promptField query.Field

	// busy gates bulk and export actions so only one runs at a time.
	busy bool

	// Bulk progress
	bulkStatus bulk.Status
	bulkDetail string
	bulkEvents chan tea.Msg

	// Export progress
	exportBar     progress.Model
	exportTitle   string
	exportStages  []string
	exportStage   export.Stage
	exportStatus  export.StageStatus
	exportPercent float64
	exportEvents  chan tea.Msg
	modalResult   string

	// Flash message (temporary notification)
	flashMessage   string
	flashExpiresAt time.Time

	quitting bool
}

// New creates a dashboard for opts.Owner's accounts.
func New(backend query.Backend, opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Classifier == nil {
		opts.Classifier = duration.New()
	}
	if opts.Profile == (export.Profile{}) {
		opts.Profile = export.DefaultProfile
	}
	if opts.PageSize < 1 {
		opts.PageSize = query.DefaultPageSize
	}

	si := textinput.New()
	si.Placeholder = "search username, email, group, tag"
	si.CharLimit = 200
	si.Width = 50

	pi := textinput.New()
	pi.CharLimit = 100
	pi.Width = 40

	return Model{
		ctl: grid.NewController(backend, opts.Owner,
			grid.WithClassifier(opts.Classifier),
			grid.WithPageSize(opts.PageSize),
			grid.WithLogger(opts.Logger),
		),
		backend:       backend,
		owner:         opts.Owner,
		version:       opts.Version,
		profile:       opts.Profile,
		dest:          opts.Destination,
		logger:        opts.Logger,
		ctx:           context.Background(),
		pageSize:      20,
		loading:       true,
		spinnerActive: true,
		searchInput:   si,
		promptInput:   pi,
		exportBar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Run starts the dashboard and blocks until the user quits or ctx is done.
func Run(ctx context.Context, backend query.Backend, opts Options) error {
	m := New(backend, opts)
	m.ctx = ctx
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadRows(), spinnerTick())
}

// Controller exposes the grid state, mainly for tests.
func (m Model) Controller() *grid.Controller { return m.ctl }

// rowsLoadedMsg carries a generation-tagged grid load.
type rowsLoadedMsg struct {
	res grid.LoadResult
}

// suggestionsLoadedMsg carries a generation-tagged suggestion lookup.
type suggestionsLoadedMsg struct {
	res grid.SuggestResult
}

// searchDebounceMsg fires after debounce delay to apply the search term.
type searchDebounceMsg struct {
	query      string
	debounceID uint64
}

// bulkDoneMsg is returned when a bulk operation completes.
type bulkDoneMsg struct {
	op  bulk.Operation
	res bulk.Result
	err error
}

// bulkStatusMsg relays a status change of the running bulk step.
type bulkStatusMsg struct {
	status bulk.Status
	detail string
}

// exportStartMsg, exportStageMsg and exportDoneMsg relay export progress.
type exportStartMsg struct {
	title  string
	stages []string
}

type exportStageMsg struct {
	stage   export.Stage
	status  export.StageStatus
	percent float64
}

type exportDoneMsg struct {
	res *export.Result
	err error
}

// flashClearMsg clears the flash message after timeout.
type flashClearMsg struct{}

// spinnerTickMsg advances the loading spinner animation.
type spinnerTickMsg struct{}

// searchDebounceDelay is the pause in typing before a search is applied.
const searchDebounceDelay = 300 * time.Millisecond

// spinnerFrames are the Braille dot animation frames for the loading spinner.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinnerInterval is how fast the spinner animates.
const spinnerInterval = 80 * time.Millisecond

// flashDuration is how long flash messages are displayed.
const flashDuration = 4 * time.Second

// loadRows issues a new load generation and fetches it off the update loop.
func (m *Model) loadRows() tea.Cmd {
	req := m.ctl.BeginLoad()
	m.loading = true
	ctl, ctx := m.ctl, m.ctx
	return func() (msg tea.Msg) {
		// Recover from panics to prevent TUI from becoming unresponsive
		defer func() {
			if r := recover(); r != nil {
				msg = rowsLoadedMsg{res: grid.LoadResult{
					Gen:   req.Gen,
					State: req.State,
					Err:   fmt.Errorf("query panic: %v", r),
				}}
			}
		}()
		return rowsLoadedMsg{res: ctl.Fetch(ctx, req)}
	}
}

// loadSuggestions looks up distinct values for the prompt's field.
func (m *Model) loadSuggestions(term string) tea.Cmd {
	req := m.ctl.BeginSuggest(m.promptField, term)
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg {
		return suggestionsLoadedMsg{res: ctl.FetchSuggestions(ctx, req)}
	}
}

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(t time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// startSpinner returns a spinnerTick command if the spinner isn't already active,
// and marks it as active. Call this when loading begins.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinnerActive {
		return nil
	}
	m.spinnerActive = true
	m.spinnerFrame = 0
	return spinnerTick()
}

// reload starts a load with the spinner running.
func (m *Model) reload() tea.Cmd {
	return tea.Batch(m.loadRows(), m.startSpinner())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 0)
		m.height = max(msg.Height, 0)
		// title + filters + header + separator + pagination + info + footer
		m.pageSize = max(m.height-7, 1)
		m.exportBar.Width = min(max(m.width-20, 10), 60)
		m.ensureCursorVisible()
		return m, nil

	case rowsLoadedMsg:
		// Stale generations are dropped by the controller.
		if !m.ctl.Apply(msg.res) {
			return m, nil
		}
		m.loading = false
		if n := len(m.ctl.Rows()); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
		m.ensureCursorVisible()
		return m, nil

	case suggestionsLoadedMsg:
		if m.ctl.ApplySuggestions(msg.res) && m.modalCursor >= len(m.ctl.Suggestions(m.promptField)) {
			m.modalCursor = -1
		}
		return m, nil

	case searchDebounceMsg:
		if msg.debounceID != m.searchDebounce {
			return m, nil
		}
		return m.applySearch(msg.query)

	case bulkStatusMsg:
		m.bulkStatus = msg.status
		m.bulkDetail = msg.detail
		return m, waitForEvents(m.bulkEvents)

	case bulkDoneMsg:
		m.busy = false
		m.bulkStatus, m.bulkDetail, m.bulkEvents = "", "", nil
		m.ctl.FinishBulk(msg.err)
		if msg.err != nil {
			m.logger.Warn("bulk operation failed", "op", msg.op.Label(), "error", msg.err)
			return m.showFlash(bulk.ErrorMessage(msg.op, msg.err))
		}
		cmd := m.reload()
		m2, flashCmd := m.showFlash(msg.res.Message())
		return m2, tea.Batch(cmd, flashCmd)

	case exportStartMsg:
		m.exportTitle = msg.title
		m.exportStages = msg.stages
		return m, waitForEvents(m.exportEvents)

	case exportStageMsg:
		m.exportStage = msg.stage
		m.exportStatus = msg.status
		m.exportPercent = msg.percent
		return m, waitForEvents(m.exportEvents)

	case exportDoneMsg:
		return m.finishExport(msg)

	case flashClearMsg:
		if !m.flashExpiresAt.IsZero() && !time.Now().Before(m.flashExpiresAt) {
			m.flashMessage = ""
			m.flashExpiresAt = time.Time{}
		}
		return m, nil

	case spinnerTickMsg:
		if !m.loading && !m.busy {
			m.spinnerActive = false
			return m, nil
		}
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		return m, spinnerTick()
	}

	return m, nil
}

// showFlash displays a temporary flash message.
func (m Model) showFlash(message string) (Model, tea.Cmd) {
	m.flashMessage = message
	m.flashExpiresAt = time.Now().Add(flashDuration)
	return m, tea.Tick(flashDuration, func(t time.Time) tea.Msg {
		return flashClearMsg{}
	})
}

// dispatch routes a grid command and reloads when the state changed.
func (m Model) dispatch(cmd grid.Command) (Model, tea.Cmd) {
	eff, err := m.ctl.Dispatch(cmd)
	if err != nil {
		return m.showFlash(err.Error())
	}
	switch eff {
	case grid.EffectReload:
		m.cursor = 0
		m.scrollOffset = 0
		cmd := m.reload()
		return m, cmd
	default:
		return m, nil
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}
	view := m.renderView()
	if m.modal != modalNone {
		view = m.overlayModal(view)
	}
	return view
}
