package query

import (
	"strings"

	"github.com/usernameweb/acctdash/internal/duration"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultPageSize is the grid's initial page size.
const DefaultPageSize = 15

// PageSizes are the page sizes offered by the grid.
var PageSizes = []int{10, 15, 25, 50, 100}

// Fold lower-cases s with Unicode rules. Search terms and the columns they
// are matched against are both folded with it.
func Fold(s string) string {
	// A Caser carries state and is not safe for concurrent use.
	return cases.Lower(language.Und).String(s)
}

// NormalizeSearch lower-cases a search term the way the grid stores it.
func NormalizeSearch(s string) string {
	return Fold(strings.TrimSpace(s))
}

// FilterState is the grid's filter and pagination state. Every filter
// setter resets Page to 1; only SetPage moves between pages.
type FilterState struct {
	Search   string          `json:"search,omitempty"`
	Group    string          `json:"group,omitempty"`
	Tag      string          `json:"tag,omitempty"`
	Duration duration.Bucket `json:"duration,omitempty"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// NewFilterState returns an unfiltered state on page 1.
func NewFilterState(pageSize int) FilterState {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return FilterState{Page: 1, PageSize: pageSize}
}

// SetSearch stores the lower-cased search term.
func (f *FilterState) SetSearch(s string) {
	f.Search = NormalizeSearch(s)
	f.Page = 1
}

// SetGroup sets the exact-match group filter; empty clears it.
func (f *FilterState) SetGroup(g string) {
	f.Group = strings.TrimSpace(g)
	f.Page = 1
}

// SetTag sets the exact-match tag filter; empty clears it.
func (f *FilterState) SetTag(t string) {
	f.Tag = strings.TrimSpace(t)
	f.Page = 1
}

// SetDuration sets the duration bucket; BucketNone clears it.
func (f *FilterState) SetDuration(b duration.Bucket) {
	f.Duration = b
	f.Page = 1
}

// SetPageSize changes the page size.
func (f *FilterState) SetPageSize(n int) {
	if n < 1 {
		n = DefaultPageSize
	}
	f.PageSize = n
	f.Page = 1
}

// SetPage moves to page p without touching the filters.
func (f *FilterState) SetPage(p int) {
	if p < 1 {
		p = 1
	}
	f.Page = p
}

// Reset clears every filter, keeping the page size.
func (f *FilterState) Reset() {
	*f = NewFilterState(f.PageSize)
}

// HasFilters reports whether any filter narrows the result set.
func (f FilterState) HasFilters() bool {
	return f.Search != "" || f.Group != "" || f.Tag != "" || f.Duration != duration.BucketNone
}

// Offset returns the index of the first row on the current page.
func (f FilterState) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
