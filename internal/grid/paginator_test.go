package grid

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPaginate(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		pageSize  int
		current   int
		window    []int
		first     bool
		leading   bool
		last      bool
		trailing  bool
		from, to  int64
		pages     int
		hasPrev   bool
		hasNext   bool
		isVisible bool
	}{
		{name: "empty", total: 0, pageSize: 15, current: 1, pages: 0},
		{name: "single page", total: 1, pageSize: 15, current: 1, window: []int{1}, from: 1, to: 1, pages: 1},
		{name: "first of ten", total: 150, pageSize: 15, current: 1, window: []int{1, 2, 3, 4, 5},
			last: true, trailing: true, from: 1, to: 15, pages: 10, hasNext: true, isVisible: true},
		{name: "third of ten", total: 150, pageSize: 15, current: 3, window: []int{1, 2, 3, 4, 5},
			last: true, trailing: true, from: 31, to: 45, pages: 10, hasPrev: true, hasNext: true, isVisible: true},
		{name: "fourth of ten", total: 150, pageSize: 15, current: 4, window: []int{2, 3, 4, 5, 6},
			first: true, last: true, trailing: true, from: 46, to: 60, pages: 10, hasPrev: true, hasNext: true, isVisible: true},
		{name: "middle", total: 150, pageSize: 15, current: 6, window: []int{4, 5, 6, 7, 8},
			first: true, leading: true, last: true, trailing: true, from: 76, to: 90, pages: 10, hasPrev: true, hasNext: true, isVisible: true},
		{name: "seventh of ten", total: 150, pageSize: 15, current: 7, window: []int{5, 6, 7, 8, 9},
			first: true, leading: true, last: true, from: 91, to: 105, pages: 10, hasPrev: true, hasNext: true, isVisible: true},
		{name: "last of ten shifts window", total: 150, pageSize: 15, current: 10, window: []int{6, 7, 8, 9, 10},
			first: true, leading: true, from: 136, to: 150, pages: 10, hasPrev: true, isVisible: true},
		{name: "three pages", total: 42, pageSize: 15, current: 3, window: []int{1, 2, 3},
			from: 31, to: 42, pages: 3, hasPrev: true, isVisible: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(tt.total, tt.pageSize, tt.current)
			if diff := cmp.Diff(tt.window, p.Window); diff != "" {
				t.Errorf("window mismatch (-want +got):\n%s", diff)
			}
			if p.ShowFirst != tt.first || p.LeadingEllipsis != tt.leading {
				t.Errorf("first/leading = %v/%v, want %v/%v", p.ShowFirst, p.LeadingEllipsis, tt.first, tt.leading)
			}
			if p.ShowLast != tt.last || p.TrailingEllipsis != tt.trailing {
				t.Errorf("last/trailing = %v/%v, want %v/%v", p.ShowLast, p.TrailingEllipsis, tt.last, tt.trailing)
			}
			if p.From != tt.from || p.To != tt.to {
				t.Errorf("range = %d-%d, want %d-%d", p.From, p.To, tt.from, tt.to)
			}
			if p.TotalPages != tt.pages {
				t.Errorf("TotalPages = %d, want %d", p.TotalPages, tt.pages)
			}
			if p.HasPrev != tt.hasPrev || p.HasNext != tt.hasNext {
				t.Errorf("prev/next = %v/%v, want %v/%v", p.HasPrev, p.HasNext, tt.hasPrev, tt.hasNext)
			}
			if p.Visible() != tt.isVisible {
				t.Errorf("Visible = %v, want %v", p.Visible(), tt.isVisible)
			}
		})
	}
}

func TestPaginate_WindowProperties(t *testing.T) {
	for pages := 1; pages <= 20; pages++ {
		for cur := 1; cur <= pages; cur++ {
			p := Paginate(int64(pages*10), 10, cur)
			want := min(5, pages)
			if len(p.Window) != want {
				t.Fatalf("pages=%d cur=%d: window len %d, want %d", pages, cur, len(p.Window), want)
			}
			contains := false
			for i, n := range p.Window {
				if i > 0 && n != p.Window[i-1]+1 {
					t.Fatalf("pages=%d cur=%d: window %v not contiguous", pages, cur, p.Window)
				}
				if n == cur {
					contains = true
				}
			}
			if !contains {
				t.Fatalf("pages=%d cur=%d: window %v misses current", pages, cur, p.Window)
			}
		}
	}
}

func TestPagination_CanGoTo(t *testing.T) {
	p := Paginate(42, 15, 2)
	for page, want := range map[int]bool{0: false, 1: true, 2: false, 3: true, 4: false} {
		if got := p.CanGoTo(page); got != want {
			t.Errorf("CanGoTo(%d) = %v, want %v", page, got, want)
		}
	}
}

func TestPagination_Summary(t *testing.T) {
	p := Paginate(42, 15, 2)
	if got := p.Summary(); got != "Showing 16 to 30 of 42 entries" {
		t.Errorf("Summary = %q", got)
	}
	p.Filtered = true
	if got := p.Summary(); got != "Showing 16 to 30 of 42 entries (filtered from total records)" {
		t.Errorf("Summary = %q", got)
	}
	if got := Paginate(0, 15, 1).Summary(); got != "Showing 0 to 0 of 0 entries" {
		t.Errorf("empty Summary = %q", got)
	}
}
