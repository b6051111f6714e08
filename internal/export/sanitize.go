package export

import "strings"

// MaxCellLength is the spreadsheet cell limit, counted in characters.
const MaxCellLength = 32767

// SanitizeCell strips control characters that spreadsheet XML cannot carry
// (0x00-0x08, 0x0B, 0x0C, 0x0E-0x1F, 0x7F) and truncates to MaxCellLength.
// Tab, line feed and carriage return are kept.
func SanitizeCell(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r <= 0x08, r == 0x0B, r == 0x0C, r >= 0x0E && r <= 0x1F, r == 0x7F:
			return -1
		}
		return r
	}, s)

	n := 0
	for i := range cleaned {
		if n == MaxCellLength {
			return cleaned[:i]
		}
		n++
	}
	return cleaned
}
