package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/usernameweb/acctdash/internal/bulk"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/grid"
	"github.com/usernameweb/acctdash/internal/query"
)

// Monochrome theme - adaptive for light and dark terminals
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgAlt    = lipgloss.AdaptiveColor{Light: "#f0f0f0", Dark: "#181818"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	// Spinner style - NOT faint so it's visible
	spinnerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	separatorStyle = lipgloss.NewStyle().
			Faint(true).
			Background(bgBase)

	cursorRowStyle = lipgloss.NewStyle().
			Background(bgCursor)

	// Checked rows: bold
	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	normalRowStyle = lipgloss.NewStyle().
			Background(bgBase)

	altRowStyle = lipgloss.NewStyle().
			Background(bgAlt)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	currentPageStyle = lipgloss.NewStyle().
				Bold(true).
				Reverse(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2).
			Background(bgBase)

	modalTitleStyle = lipgloss.NewStyle().
			Bold(true)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}).
			Background(bgBase)
)

// Fixed column widths; username and email share what is left.
const (
	colCheck   = 3
	colID      = 6
	colGroup   = 12
	colTag     = 12
	colCreated = 12
	colAge     = 10
	colGaps    = 7
	minFlexCol = 8
)

// maxSuggestions caps the suggestion list in prompt modals.
const maxSuggestions = 8

func (m Model) renderView() string {
	return strings.Join([]string{
		m.titleBarView(),
		m.filterLineView(),
		m.tableView(),
		m.paginationView(),
		m.renderNotificationLine(),
		m.footerView(),
	}, "\n")
}

func (m Model) titleBarView() string {
	title := "acctdash"
	if m.version != "" {
		title += " " + m.version
	}
	right := m.owner
	gap := m.width - 2 - lipgloss.Width(title) - lipgloss.Width(right)
	if gap < 1 {
		return titleBarStyle.Render(padRight(title, max(m.width-2, 1)))
	}
	return titleBarStyle.Render(title + strings.Repeat(" ", gap) + right)
}

// filterLineView shows the active filters, or the search bar while typing.
func (m Model) filterLineView() string {
	contentWidth := max(m.width-2, 1)
	if m.searchActive {
		return statsStyle.Render(padRight("/"+m.searchInput.View(), contentWidth))
	}
	st := m.ctl.State()
	parts := []string{
		"Search: " + valueOrDash(st.Search),
		"Group: " + valueOrDash(st.Group),
		"Tag: " + valueOrDash(st.Tag),
		"Duration: " + st.Duration.Label(),
		fmt.Sprintf("Show %d", st.PageSize),
	}
	return statsStyle.Render(padRight(strings.Join(parts, "  │  "), contentWidth))
}

// columnWidths returns the username and email column widths.
func (m Model) columnWidths() (int, int) {
	fixed := colCheck + colID + colGroup + colTag + colCreated + colAge + colGaps + 2
	flex := max(m.width-fixed, 2*minFlexCol)
	user := max(flex*2/5, minFlexCol)
	return user, max(flex-user, minFlexCol)
}

func (m Model) formatRow(check, id, user, email, group, tag, created, age string) string {
	userW, emailW := m.columnWidths()
	return " " + strings.Join([]string{
		cell(check, colCheck),
		cell(id, colID),
		cell(user, userW),
		cell(email, emailW),
		cell(group, colGroup),
		cell(tag, colTag),
		cell(created, colCreated),
		cell(age, colAge),
	}, " ")
}

func (m Model) tableView() string {
	var b strings.Builder
	sel := m.ctl.Selection()
	header := m.formatRow(checkbox(sel.State()), "ID", "Username", "Email", "Group", "Tag", "Created", "Age")
	b.WriteString(tableHeaderStyle.Render(padRight(header, m.width)))
	b.WriteString("\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	rows := m.ctl.Rows()
	cls := m.ctl.Classifier()
	lines := 0
	if len(rows) == 0 && !m.loading {
		text := m.ctl.EmptyText()
		style := normalRowStyle
		if m.ctl.Err() != nil {
			style = errorStyle
			text += ": " + query.Cause(m.ctl.Err())
		}
		b.WriteString(style.Render(padRight("  "+text, m.width)))
		b.WriteString("\n")
		lines++
	}

	end := min(m.scrollOffset+m.pageSize, len(rows))
	for i := m.scrollOffset; i < end; i++ {
		a := rows[i]
		state := grid.TriUnchecked
		if sel.IsSelected(a.ID) {
			state = grid.TriChecked
		}
		line := m.formatRow(
			checkbox(state),
			fmt.Sprintf("%d", a.ID),
			a.Username,
			a.OwnerEmail,
			valueOrDash(a.Group),
			valueOrDash(a.Tag),
			cls.FormatDate(a.CreatedAt),
			cls.Display(a.CreatedAt),
		)
		style := normalRowStyle
		switch {
		case i == m.cursor:
			style = cursorRowStyle
		case state == grid.TriChecked:
			style = selectedRowStyle
		case i%2 == 1:
			style = altRowStyle
		}
		b.WriteString(style.Render(padRight(line, m.width)))
		b.WriteString("\n")
		lines++
	}

	for ; lines < m.pageSize; lines++ {
		b.WriteString(normalRowStyle.Render(strings.Repeat(" ", m.width)))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// pageButtons renders the page window with first/last shortcuts.
func pageButtons(p grid.Pagination) string {
	var parts []string
	if p.HasPrev {
		parts = append(parts, "‹")
	}
	if p.ShowFirst {
		parts = append(parts, "1")
	}
	if p.LeadingEllipsis {
		parts = append(parts, "…")
	}
	for _, n := range p.Window {
		if n == p.Current {
			parts = append(parts, currentPageStyle.Render(fmt.Sprintf("%d", n)))
			continue
		}
		parts = append(parts, fmt.Sprintf("%d", n))
	}
	if p.TrailingEllipsis {
		parts = append(parts, "…")
	}
	if p.ShowLast {
		parts = append(parts, fmt.Sprintf("%d", p.TotalPages))
	}
	if p.HasNext {
		parts = append(parts, "›")
	}
	return strings.Join(parts, " ")
}

func (m Model) paginationView() string {
	p := m.ctl.Pagination()
	summary := p.Summary()
	content := summary
	if p.Visible() {
		buttons := pageButtons(p)
		gap := m.width - 2 - lipgloss.Width(summary) - lipgloss.Width(buttons)
		if gap >= 2 {
			content = summary + strings.Repeat(" ", gap) + buttons
		}
	}
	return statsStyle.Render(padRight(content, max(m.width-2, 1)))
}

func (m Model) spinnerIndicator() string {
	if m.spinnerFrame < len(spinnerFrames) {
		return spinnerFrames[m.spinnerFrame]
	}
	return spinnerFrames[0]
}

// renderNotificationLine shows the flash message, the running bulk step or
// the selection count, with a right-aligned spinner while loading.
func (m Model) renderNotificationLine() string {
	content := ""
	style := statsStyle
	if m.flashMessage != "" {
		content = m.flashMessage
		style = flashStyle.Padding(0, 1)
	} else if m.bulkStatus != "" {
		content = bulkStatusLine(m.bulkStatus, m.bulkDetail)
	} else if n := m.ctl.Selection().Count(); n > 0 {
		content = fmt.Sprintf("%d selected", n)
	}
	contentWidth := max(m.width-2, 1)
	if m.loading || m.busy {
		indicator := spinnerStyle.Render(m.spinnerIndicator())
		gap := max(contentWidth-lipgloss.Width(content)-lipgloss.Width(indicator), 1)
		content += strings.Repeat(" ", gap) + indicator
	}
	return style.Render(padRight(content, contentWidth))
}

// bulkStatusLine renders one bulk progress step, e.g. "[processing] update tag: 2 account(s)".
func bulkStatusLine(status bulk.Status, detail string) string {
	return "[" + string(status) + "] " + detail
}

func (m Model) footerView() string {
	var keys string
	switch {
	case m.searchActive:
		keys = "[Enter] apply  [Esc] clear"
	case m.ctl.Selection().ActionsEnabled():
		keys = "[G/T] set group/tag  [D] delete  [e] xlsx  [c] csv  [x] clear  [?] help"
	default:
		keys = "[/] search  [g/t/d] filter  [←/→] page  [+/-] size  [space] select  [r] reset  [?] help  [q] quit"
	}
	return footerStyle.Render(padRight(keys, max(m.width-2, 1)))
}

// rawHelpLines contains the help modal content. The first line is the title.
var rawHelpLines = []string{
	"Keyboard Shortcuts",
	"",
	"Navigation",
	"  ↑/k, ↓/j    Move cursor",
	"  ←/h, →/l    Previous/next page",
	"  [ / ]       First/last page",
	"  +/-         Change rows per page",
	"",
	"Filters",
	"  /           Search",
	"  g / t       Filter by group / tag",
	"  d           Filter by age",
	"  r           Reset all filters",
	"",
	"Selection & Actions",
	"  Space       Toggle row",
	"  a           Toggle all rows on this page",
	"  x / Esc     Clear selection",
	"  G / T       Set group / tag on selection",
	"  D           Delete selection",
	"  e / c       Export selection to XLSX / CSV",
	"",
	"Other",
	"  Ctrl+R      Reload",
	"  q           Quit",
	"",
	"[Any key] Close",
}

func (m Model) renderHelpModal() string {
	lines := append([]string{modalTitleStyle.Render(rawHelpLines[0])}, rawHelpLines[1:]...)
	if limit := max(m.height-6, 3); len(lines) > limit {
		lines = lines[:limit]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderPromptModal() string {
	var b strings.Builder
	n := m.ctl.Selection().Count()
	if m.modal == modalBulkValue {
		b.WriteString(modalTitleStyle.Render(fmt.Sprintf("Set %s on %d account(s)", m.promptField, n)))
	} else {
		b.WriteString(modalTitleStyle.Render(fmt.Sprintf("Filter by %s", m.promptField)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.promptInput.View())
	b.WriteString("\n")

	suggestions := m.ctl.Suggestions(m.promptField)
	for i, s := range suggestions {
		if i >= maxSuggestions {
			b.WriteString(fmt.Sprintf("\n  … %d more", len(suggestions)-maxSuggestions))
			break
		}
		marker := "  "
		if i == m.modalCursor {
			marker = "> "
		}
		b.WriteString("\n" + marker + truncateRunes(s, 40))
	}

	b.WriteString("\n\n[Enter] apply  [↑/↓] pick  [Esc] cancel")
	if m.modal == modalFilter {
		b.WriteString("\nEmpty value clears the filter")
	}
	return b.String()
}

func (m Model) renderDurationModal() string {
	var b strings.Builder
	b.WriteString(modalTitleStyle.Render("Filter by age"))
	b.WriteString("\n")
	options := append([]duration.Bucket{duration.BucketNone}, duration.Buckets...)
	for i, opt := range options {
		marker := "  "
		if i == m.modalCursor {
			marker = "> "
		}
		b.WriteString("\n" + marker + opt.Label())
	}
	b.WriteString("\n\n[Enter] apply  [Esc] cancel")
	return b.String()
}

func (m Model) renderDeleteConfirmModal() string {
	n := m.ctl.Selection().Count()
	return modalTitleStyle.Render("Delete Accounts") + "\n\n" +
		fmt.Sprintf("Delete %d selected account(s)?\n", n) +
		"This cannot be undone.\n\n" +
		"[Y] Delete  [N] Cancel"
}

func stageMarker(i int, current export.Stage, status export.StageStatus, spinner string) string {
	switch {
	case export.Stage(i) < current:
		return "✓"
	case export.Stage(i) > current:
		return "·"
	}
	switch status {
	case export.StageSuccess:
		return "✓"
	case export.StageError:
		return "✗"
	case export.StageProcessing:
		return spinner
	default:
		return "·"
	}
}

func (m Model) renderExportProgressModal() string {
	var b strings.Builder
	b.WriteString(modalTitleStyle.Render(m.exportTitle))
	b.WriteString("\n\n")
	b.WriteString(m.exportBar.ViewAs(m.exportPercent))
	b.WriteString("\n")
	for i, label := range m.exportStages {
		b.WriteString(fmt.Sprintf("\n%s %s", stageMarker(i, m.exportStage, m.exportStatus, m.spinnerIndicator()), label))
	}
	return b.String()
}

func (m Model) renderExportResultModal() string {
	return modalTitleStyle.Render("Export Complete") + "\n\n" +
		m.modalResult + "\n\n" +
		"Press any key to close"
}

func (m Model) renderQuitConfirmModal() string {
	return modalTitleStyle.Render("Quit acctdash?") + "\n\n" +
		"[Y] Quit  [N] Cancel"
}

// overlayModal renders the open modal centered over background.
func (m Model) overlayModal(background string) string {
	var modalContent string

	switch m.modal {
	case modalFilter, modalBulkValue:
		modalContent = m.renderPromptModal()
	case modalDuration:
		modalContent = m.renderDurationModal()
	case modalDeleteConfirm:
		modalContent = m.renderDeleteConfirmModal()
	case modalExportProgress:
		modalContent = m.renderExportProgressModal()
	case modalExportResult:
		modalContent = m.renderExportResultModal()
	case modalQuitConfirm:
		modalContent = m.renderQuitConfirmModal()
	case modalHelp:
		modalContent = m.renderHelpModal()
	}

	if modalContent == "" {
		return background
	}

	modal := modalStyle.Render(modalContent)

	bgLines := strings.Split(background, "\n")
	modalLines := strings.Split(modal, "\n")

	startLine := max((len(bgLines)-len(modalLines))/2, 0)
	modalWidth := lipgloss.Width(modal)
	leftPadding := max((m.width-modalWidth)/2, 0)

	// Overlay modal onto background, preserving background where modal doesn't cover
	for i, modalLine := range modalLines {
		lineIdx := startLine + i
		if lineIdx >= len(bgLines) {
			break
		}
		bgLine := bgLines[lineIdx]
		bgWidth := lipgloss.Width(bgLine)

		var composite strings.Builder
		if leftPadding > 0 {
			leftBg := truncateToWidth(bgLine, leftPadding)
			composite.WriteString(leftBg)
			if w := lipgloss.Width(leftBg); w < leftPadding {
				composite.WriteString(strings.Repeat(" ", leftPadding-w))
			}
		}
		composite.WriteString(modalLine)
		if rightStart := leftPadding + modalWidth; rightStart < bgWidth {
			composite.WriteString(skipToWidth(bgLine, rightStart))
		}
		bgLines[lineIdx] = composite.String()
	}

	return strings.Join(bgLines, "\n")
}
