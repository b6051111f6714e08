package grid

// TriState is the state of the select-all control.
type TriState int

const (
	TriUnchecked TriState = iota
	TriIndeterminate
	TriChecked
)

func (t TriState) String() string {
	switch t {
	case TriChecked:
		return "checked"
	case TriIndeterminate:
		return "indeterminate"
	default:
		return "unchecked"
	}
}

// Selection tracks checked rows on the rendered page. It is rebuilt on every
// page load, so checked rows never carry over to another page.
type Selection struct {
	rows    []int64
	checked map[int64]bool
}

// NewSelection returns an empty selection over the given rendered rows.
func NewSelection(rows []int64) *Selection {
	s := &Selection{}
	s.Reset(rows)
	return s
}

// Reset replaces the rendered rows and clears every check.
func (s *Selection) Reset(rows []int64) {
	s.rows = append([]int64(nil), rows...)
	s.checked = make(map[int64]bool)
}

// Rows returns the rendered row IDs in display order.
func (s *Selection) Rows() []int64 {
	return s.rows
}

// Toggle flips one row. IDs that are not rendered are ignored.
func (s *Selection) Toggle(id int64) {
	if !s.isRendered(id) {
		return
	}
	if s.checked[id] {
		delete(s.checked, id)
	} else {
		s.checked[id] = true
	}
}

// Set checks or unchecks one rendered row.
func (s *Selection) Set(id int64, on bool) {
	if !s.isRendered(id) {
		return
	}
	if on {
		s.checked[id] = true
	} else {
		delete(s.checked, id)
	}
}

// SetAll checks or unchecks every rendered row.
func (s *Selection) SetAll(on bool) {
	s.checked = make(map[int64]bool)
	if on {
		for _, id := range s.rows {
			s.checked[id] = true
		}
	}
}

// ToggleAll behaves like clicking the select-all control: anything short of
// a full selection becomes a full selection, a full selection is cleared.
func (s *Selection) ToggleAll() {
	s.SetAll(s.State() != TriChecked)
}

// Clear unchecks every row.
func (s *Selection) Clear() {
	s.SetAll(false)
}

// IsSelected reports whether id is checked.
func (s *Selection) IsSelected(id int64) bool {
	return s.checked[id]
}

// Count returns the number of checked rows.
func (s *Selection) Count() int {
	return len(s.checked)
}

// IDs returns the checked IDs in display order.
func (s *Selection) IDs() []int64 {
	ids := make([]int64, 0, len(s.checked))
	for _, id := range s.rows {
		if s.checked[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// State derives the select-all control state from the checked rows.
func (s *Selection) State() TriState {
	switch n := s.Count(); {
	case n == 0:
		return TriUnchecked
	case n == len(s.rows):
		return TriChecked
	default:
		return TriIndeterminate
	}
}

// ActionsEnabled reports whether bulk actions and export may run.
func (s *Selection) ActionsEnabled() bool {
	return s.Count() >= 1
}

func (s *Selection) isRendered(id int64) bool {
	for _, r := range s.rows {
		if r == id {
			return true
		}
	}
	return false
}
