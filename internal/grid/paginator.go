// Package grid holds the account grid's state machine: pagination, row
// selection, command dispatch and generation-tagged loading.
package grid

import "fmt"

// windowSize is the number of page buttons shown around the current page.
const windowSize = 5

// Pagination describes the navigable state of one rendered page.
type Pagination struct {
	Total      int64 // rows matching the filters, after the duration filter
	PageSize   int
	Current    int
	TotalPages int

	// Window holds the contiguous page numbers shown around Current.
	Window []int

	ShowFirst        bool // shortcut to page 1 before the window
	LeadingEllipsis  bool // gap between page 1 and the window
	ShowLast         bool // shortcut to the last page after the window
	TrailingEllipsis bool // gap between the window and the last page

	HasPrev bool
	HasNext bool

	// From and To are the 1-based bounds of the displayed rows; both are 0
	// when there are no rows.
	From int64
	To   int64

	// Filtered marks that the total was narrowed by filters.
	Filtered bool
}

// Paginate computes pagination for total rows at the given page size.
func Paginate(total int64, pageSize, current int) Pagination {
	if pageSize < 1 {
		pageSize = 1
	}
	if current < 1 {
		current = 1
	}
	if total < 0 {
		total = 0
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	p := Pagination{
		Total:      total,
		PageSize:   pageSize,
		Current:    current,
		TotalPages: totalPages,
		HasPrev:    current > 1,
		HasNext:    current < totalPages,
	}

	if totalPages > 0 {
		start := max(1, current-2)
		end := min(totalPages, start+windowSize-1)
		if end-start+1 < windowSize {
			start = max(1, end-windowSize+1)
		}
		for i := start; i <= end; i++ {
			p.Window = append(p.Window, i)
		}
		p.ShowFirst = start > 1
		p.LeadingEllipsis = start > 2
		p.ShowLast = end < totalPages
		p.TrailingEllipsis = end < totalPages-1
	}

	if total > 0 {
		p.From = int64(current-1)*int64(pageSize) + 1
		p.To = min(int64(current)*int64(pageSize), total)
		if p.From > total {
			p.From, p.To = 0, 0
		}
	}
	return p
}

// Visible reports whether pagination controls should be rendered at all.
func (p Pagination) Visible() bool {
	return p.TotalPages > 1
}

// CanGoTo reports whether navigating to page would change anything.
// Out-of-range targets and the current page are no-ops.
func (p Pagination) CanGoTo(page int) bool {
	return page >= 1 && page <= p.TotalPages && page != p.Current
}

// Summary renders the entry counter, e.g. "Showing 16 to 30 of 42 entries".
func (p Pagination) Summary() string {
	s := fmt.Sprintf("Showing %d to %d of %d entries", p.From, p.To, p.Total)
	if p.Filtered {
		s += " (filtered from total records)"
	}
	return s
}
