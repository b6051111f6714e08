package tui

import (
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/usernameweb/acctdash/internal/bulk"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/grid"
	"github.com/usernameweb/acctdash/internal/query"
)

// handleKeyPress routes a key to the search bar, the open modal or the grid.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.modal != modalNone {
		return m.handleModalKeys(msg)
	}
	if m.searchActive {
		return m.handleSearchKeys(msg)
	}
	return m.handleGridKeys(msg)
}

// handleSearchKeys handles keys when the inline search bar is active.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		// Apply immediately and drop any pending debounce.
		m.searchDebounce++
		m.searchActive = false
		m.searchInput.Blur()
		return m.applySearch(m.searchInput.Value())

	case "esc":
		m.searchDebounce++
		m.searchActive = false
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		return m.applySearch("")

	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)

		term := m.searchInput.Value()
		m.searchDebounce++
		debounceID := m.searchDebounce
		debounceCmd := tea.Tick(searchDebounceDelay, func(time.Time) tea.Msg {
			return searchDebounceMsg{query: term, debounceID: debounceID}
		})
		return m, tea.Batch(cmd, debounceCmd)
	}
}

// applySearch dispatches term unless it is already the active search.
func (m Model) applySearch(term string) (tea.Model, tea.Cmd) {
	if query.NormalizeSearch(term) == m.ctl.State().Search {
		return m, nil
	}
	return m.dispatch(grid.Command{Action: grid.ActionSearch, Value: term})
}

// handleGlobalKeys handles keys common to every view (quit, help).
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "q":
		m.modal = modalQuitConfirm
		return m, nil, true
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit, true
	case "?":
		m.modal = modalHelp
		return m, nil, true
	}
	return m, nil, false
}

// handleGridKeys handles keys on the account table.
func (m Model) handleGridKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m2, cmd, handled := m.handleGlobalKeys(msg); handled {
		return m2, cmd
	}
	if m.navigateList(msg.String(), len(m.ctl.Rows())) {
		return m, nil
	}

	switch msg.String() {
	case "/":
		m.searchActive = true
		m.searchInput.SetValue(m.ctl.State().Search)
		m.searchInput.CursorEnd()
		cmd := m.searchInput.Focus()
		return m, cmd

	case "g":
		return m.openPrompt(modalFilter, query.FieldGroup, m.ctl.State().Group)
	case "t":
		return m.openPrompt(modalFilter, query.FieldTag, m.ctl.State().Tag)
	case "d":
		m.modal = modalDuration
		m.modalCursor = slices.Index(duration.Buckets, m.ctl.State().Duration) + 1
		return m, nil

	case "G", "T":
		if !m.ctl.Selection().ActionsEnabled() {
			return m.showFlash(msgSelectFirst)
		}
		if m.busy {
			return m.showFlash(msgBusy)
		}
		field := query.FieldGroup
		if msg.String() == "T" {
			field = query.FieldTag
		}
		return m.openPrompt(modalBulkValue, field, "")

	case "D":
		if !m.ctl.Selection().ActionsEnabled() {
			return m.showFlash(msgSelectFirst)
		}
		if m.busy {
			return m.showFlash(msgBusy)
		}
		m.modal = modalDeleteConfirm
		return m, nil

	case "e":
		return m.startExport(export.FormatXLSX)
	case "c":
		return m.startExport(export.FormatCSV)

	case "+", "=":
		return m.stepPageSize(1)
	case "-", "_":
		return m.stepPageSize(-1)

	case "left", "h":
		return m.dispatch(grid.Command{Action: grid.ActionPrevPage})
	case "right", "l":
		return m.dispatch(grid.Command{Action: grid.ActionNextPage})
	case "[":
		return m.dispatch(grid.Command{Action: grid.ActionFirstPage})
	case "]":
		return m.dispatch(grid.Command{Action: grid.ActionLastPage})

	case " ":
		rows := m.ctl.Rows()
		if m.cursor < len(rows) {
			_, _ = m.ctl.Dispatch(grid.Command{Action: grid.ActionToggleRow, ID: rows[m.cursor].ID})
			if m.cursor < len(rows)-1 {
				m.cursor++
				m.ensureCursorVisible()
			}
		}
		return m, nil
	case "a":
		return m.dispatch(grid.Command{Action: grid.ActionToggleAll})
	case "x":
		return m.dispatch(grid.Command{Action: grid.ActionClearSelection})

	case "r":
		m.searchInput.SetValue("")
		return m.dispatch(grid.Command{Action: grid.ActionResetAll})
	case "ctrl+r":
		m.cursor = 0
		cmd := m.reload()
		return m, cmd

	case "esc":
		if m.ctl.Selection().Count() > 0 {
			return m.dispatch(grid.Command{Action: grid.ActionClearSelection})
		}
	}
	return m, nil
}

// stepPageSize moves to the next or previous offered page size.
func (m Model) stepPageSize(delta int) (tea.Model, tea.Cmd) {
	cur := m.ctl.State().PageSize
	i := slices.Index(query.PageSizes, cur)
	if i < 0 {
		// Unlisted size: snap to the nearest listed one in the step direction.
		i = 0
		for i < len(query.PageSizes)-1 && query.PageSizes[i] < cur {
			i++
		}
		if delta > 0 && query.PageSizes[i] <= cur {
			return m, nil
		}
		delta = 0
	}
	next := i + delta
	if next < 0 || next >= len(query.PageSizes) {
		return m, nil
	}
	return m.dispatch(grid.Command{Action: grid.ActionPageSize, N: query.PageSizes[next]})
}

// openPrompt shows a text prompt with suggestions for field.
func (m Model) openPrompt(kind modalType, field query.Field, value string) (tea.Model, tea.Cmd) {
	m.modal = kind
	m.modalCursor = -1
	m.promptField = field
	m.promptInput.SetValue(value)
	m.promptInput.CursorEnd()
	focus := m.promptInput.Focus()
	return m, tea.Batch(focus, m.loadSuggestions(""))
}

// handleModalKeys routes keys to the open modal.
func (m Model) handleModalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.modal {
	case modalFilter, modalBulkValue:
		return m.handlePromptKeys(msg)
	case modalDuration:
		return m.handleDurationKeys(msg)
	case modalDeleteConfirm:
		return m.handleDeleteConfirmKeys(msg)
	case modalExportProgress:
		// The export cannot be interrupted; only ctrl+c gets through.
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case modalExportResult:
		m.modal = modalNone
		m.modalResult = ""
		return m, nil
	case modalQuitConfirm:
		return m.handleQuitConfirmKeys(msg)
	case modalHelp:
		m.modal = modalNone
		return m, nil
	}
	return m, nil
}

// handlePromptKeys edits the prompt value; up/down pick a suggestion.
func (m Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	suggestions := m.ctl.Suggestions(m.promptField)
	switch msg.String() {
	case "esc":
		m.closePrompt()
		return m, nil

	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "ctrl+p":
		if m.modalCursor > -1 {
			m.modalCursor--
		}
		return m, nil

	case "down", "ctrl+n", "tab":
		if m.modalCursor < len(suggestions)-1 {
			m.modalCursor++
		}
		return m, nil

	case "enter":
		value := m.promptInput.Value()
		if m.modalCursor >= 0 && m.modalCursor < len(suggestions) {
			value = suggestions[m.modalCursor]
		}
		kind, field := m.modal, m.promptField
		m.closePrompt()
		if kind == modalBulkValue {
			return m.startBulk(bulk.Update(field, value))
		}
		action := grid.ActionFilterGroup
		if field == query.FieldTag {
			action = grid.ActionFilterTag
		}
		return m.dispatch(grid.Command{Action: action, Value: value})

	default:
		var cmd tea.Cmd
		before := m.promptInput.Value()
		m.promptInput, cmd = m.promptInput.Update(msg)
		if after := m.promptInput.Value(); after != before {
			m.modalCursor = -1
			return m, tea.Batch(cmd, m.loadSuggestions(after))
		}
		return m, cmd
	}
}

func (m *Model) closePrompt() {
	m.modal = modalNone
	m.modalCursor = 0
	m.promptInput.Blur()
	m.promptInput.SetValue("")
}

// handleDurationKeys picks a bucket; the first entry clears the filter.
func (m Model) handleDurationKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.modalCursor > 0 {
			m.modalCursor--
		}
	case "down", "j":
		if m.modalCursor < len(duration.Buckets) {
			m.modalCursor++
		}
	case "enter", " ":
		m.modal = modalNone
		if m.modalCursor == 0 {
			return m.dispatch(grid.Command{Action: grid.ActionResetDuration})
		}
		b := duration.Buckets[m.modalCursor-1]
		return m.dispatch(grid.Command{Action: grid.ActionFilterDuration, Value: string(b)})
	case "esc", "q":
		m.modal = modalNone
	}
	return m, nil
}

func (m Model) handleDeleteConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.modal = modalNone
		return m.startBulk(bulk.Delete())
	case "n", "N", "esc":
		m.modal = modalNone
	}
	return m, nil
}

func (m Model) handleQuitConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "q":
		m.quitting = true
		return m, tea.Quit
	case "n", "N", "esc":
		m.modal = modalNone
	}
	return m, nil
}
