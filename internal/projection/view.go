package projection

import (
	"context"
	"slices"
	"sync"

	"github.com/stacklok/toolhive-roster/internal/roster"
)

// View holds the most recent projection of the roster. It is refreshed by the
// reconciliation engine after every mutation, and by presentation adapters
// through Refresh so writes from other processes show up too.
type View struct {
	mu       sync.RWMutex
	rows     []Row
	active   int
	onChange []func([]Row)
}

// NewView creates a view seeded from reg. A nil registry yields an empty view.
func NewView(reg *roster.Registry) *View {
	v := &View{}
	v.set(reg)
	return v
}

// OnChange registers fn to be called with the new rows after every refresh
func (v *View) OnChange(fn func([]Row)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = append(v.onChange, fn)
}

// RosterChanged recomputes the rows from reg
func (v *View) RosterChanged(_ context.Context, reg *roster.Registry) {
	rows := v.set(reg)

	v.mu.RLock()
	listeners := append([]func([]Row){}, v.onChange...)
	v.mu.RUnlock()
	for _, fn := range listeners {
		fn(cloneRows(rows))
	}
}

// Refresh recomputes the rows from reg, a fresh read of storage, and returns
// a copy of them. Listeners are called only when the rows differ from the
// current ones.
func (v *View) Refresh(_ context.Context, reg *roster.Registry) []Row {
	rows := Project(reg)

	v.mu.Lock()
	changed := !slices.Equal(v.rows, rows)
	v.rows = rows
	v.active = ActiveCount(rows)
	listeners := append([]func([]Row){}, v.onChange...)
	v.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(cloneRows(rows))
		}
	}
	return cloneRows(rows)
}

// OrderedRows returns a copy of the current rows in display order
func (v *View) OrderedRows() []Row {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return cloneRows(v.rows)
}

// ActiveCount returns the number of connected clients in the current view
func (v *View) ActiveCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.active
}

func (v *View) set(reg *roster.Registry) []Row {
	rows := Project(reg)
	v.mu.Lock()
	v.rows = rows
	v.active = ActiveCount(rows)
	v.mu.Unlock()
	return rows
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}
