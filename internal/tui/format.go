package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/usernameweb/acctdash/internal/grid"
)

// padRight pads or cuts s to exactly width cells, ANSI aware.
func padRight(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// truncateRunes flattens s onto one line and cuts it to maxWidth cells,
// ending in "..." when there is room for it. Wide runes count as two cells.
func truncateRunes(s string, maxWidth int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")

	width := runewidth.StringWidth(s)
	if width <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// cell truncates s and pads it to exactly width cells.
func cell(s string, width int) string {
	return padRight(truncateRunes(s, width), width)
}

// truncateToWidth keeps the first maxWidth columns of a styled line.
func truncateToWidth(s string, maxWidth int) string {
	return ansi.Truncate(s, maxWidth, "")
}

// skipToWidth drops the first skipWidth columns of a styled line.
func skipToWidth(s string, skipWidth int) string {
	return ansi.Cut(s, skipWidth, 10000)
}

// checkbox renders a row or header checkbox.
func checkbox(state grid.TriState) string {
	switch state {
	case grid.TriChecked:
		return "[x]"
	case grid.TriIndeterminate:
		return "[-]"
	default:
		return "[ ]"
	}
}

// valueOrDash renders empty optional fields as "-".
func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
