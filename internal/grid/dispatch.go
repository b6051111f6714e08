package grid

import (
	"fmt"
	"strconv"

	"github.com/usernameweb/acctdash/internal/duration"
)

// Action names a user command on the grid.
type Action string

const (
	ActionSearch         Action = "search"
	ActionFilterGroup    Action = "filter-group"
	ActionFilterTag      Action = "filter-tag"
	ActionFilterDuration Action = "filter-duration"
	ActionResetGroup     Action = "reset-group"
	ActionResetTag       Action = "reset-tag"
	ActionResetDuration  Action = "reset-duration"
	ActionResetAll       Action = "reset-all"
	ActionPageSize       Action = "page-size"
	ActionGoToPage       Action = "go-to-page"
	ActionPrevPage       Action = "prev-page"
	ActionNextPage       Action = "next-page"
	ActionFirstPage      Action = "first-page"
	ActionLastPage       Action = "last-page"
	ActionToggleRow      Action = "toggle-row"
	ActionToggleAll      Action = "toggle-all"
	ActionClearSelection Action = "clear-selection"
)

// Command is one user event. Value carries text arguments (search term,
// filter value, bucket, page size), N numeric ones and ID a row.
type Command struct {
	Action Action
	Value  string
	N      int
	ID     int64
}

// Effect tells the caller what to do after a command.
type Effect int

const (
	// EffectNone means nothing changed.
	EffectNone Effect = iota
	// EffectRender means only local state changed.
	EffectRender
	// EffectReload means filters or page changed and rows must be fetched.
	EffectReload
)

type handler func(c *Controller, cmd Command) (Effect, error)

// handlers is the command dispatch table.
var handlers = map[Action]handler{
	ActionSearch: func(c *Controller, cmd Command) (Effect, error) {
		c.state.SetSearch(cmd.Value)
		return EffectReload, nil
	},
	ActionFilterGroup: func(c *Controller, cmd Command) (Effect, error) {
		c.state.SetGroup(cmd.Value)
		return EffectReload, nil
	},
	ActionFilterTag: func(c *Controller, cmd Command) (Effect, error) {
		c.state.SetTag(cmd.Value)
		return EffectReload, nil
	},
	ActionFilterDuration: func(c *Controller, cmd Command) (Effect, error) {
		b, err := duration.ParseBucket(cmd.Value)
		if err != nil {
			return EffectNone, err
		}
		c.state.SetDuration(b)
		return EffectReload, nil
	},
	ActionResetGroup: func(c *Controller, _ Command) (Effect, error) {
		c.state.SetGroup("")
		return EffectReload, nil
	},
	ActionResetTag: func(c *Controller, _ Command) (Effect, error) {
		c.state.SetTag("")
		return EffectReload, nil
	},
	ActionResetDuration: func(c *Controller, _ Command) (Effect, error) {
		c.state.SetDuration(duration.BucketNone)
		return EffectReload, nil
	},
	ActionResetAll: func(c *Controller, _ Command) (Effect, error) {
		c.state.Reset()
		return EffectReload, nil
	},
	ActionPageSize: func(c *Controller, cmd Command) (Effect, error) {
		n := cmd.N
		if cmd.Value != "" {
			v, err := strconv.Atoi(cmd.Value)
			if err != nil {
				return EffectNone, fmt.Errorf("invalid page size %q", cmd.Value)
			}
			n = v
		}
		if n < 1 {
			return EffectNone, fmt.Errorf("invalid page size %d", n)
		}
		c.state.SetPageSize(n)
		return EffectReload, nil
	},
	ActionGoToPage: func(c *Controller, cmd Command) (Effect, error) {
		return c.goToPage(cmd.N), nil
	},
	ActionPrevPage: func(c *Controller, _ Command) (Effect, error) {
		return c.goToPage(c.state.Page - 1), nil
	},
	ActionNextPage: func(c *Controller, _ Command) (Effect, error) {
		return c.goToPage(c.state.Page + 1), nil
	},
	ActionFirstPage: func(c *Controller, _ Command) (Effect, error) {
		return c.goToPage(1), nil
	},
	ActionLastPage: func(c *Controller, _ Command) (Effect, error) {
		return c.goToPage(c.pagination.TotalPages), nil
	},
	ActionToggleRow: func(c *Controller, cmd Command) (Effect, error) {
		c.selection.Toggle(cmd.ID)
		return EffectRender, nil
	},
	ActionToggleAll: func(c *Controller, _ Command) (Effect, error) {
		c.selection.ToggleAll()
		return EffectRender, nil
	},
	ActionClearSelection: func(c *Controller, _ Command) (Effect, error) {
		c.selection.Clear()
		return EffectRender, nil
	},
}

// Dispatch routes cmd through the dispatch table.
func (c *Controller) Dispatch(cmd Command) (Effect, error) {
	h, ok := handlers[cmd.Action]
	if !ok {
		return EffectNone, fmt.Errorf("unknown grid action %q", cmd.Action)
	}
	return h(c, cmd)
}

// goToPage is a no-op for out-of-range targets and the current page.
func (c *Controller) goToPage(page int) Effect {
	if !c.pagination.CanGoTo(page) {
		return EffectNone
	}
	c.state.SetPage(page)
	return EffectReload
}
