// Package flight keeps at most one server request current at a time.
// Starting a request supersedes any earlier one, and responses to
// superseded requests are discarded by their receivers.
package flight

import (
	"sync"

	"github.com/google/uuid"
)

// Ticket identifies one issued request.
type Ticket struct {
	ID     string
	Action string
}

// Tracker hands out tickets and remembers which one is current.
type Tracker struct {
	mu      sync.Mutex
	current *Ticket
}

// New creates an idle tracker.
func New() *Tracker {
	return &Tracker{}
}

// Begin issues a ticket for action, superseding any outstanding one.
func (t *Tracker) Begin(action string) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk := Ticket{ID: uuid.NewString(), Action: action}
	t.current = &tk
	return tk
}

// Current reports whether tk is the most recently issued, unfinished ticket.
func (t *Tracker) Current(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.current != nil && t.current.ID == tk.ID
}

// Finish marks tk as done. It reports false, and changes nothing, when tk
// has already been superseded.
func (t *Tracker) Finish(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil || t.current.ID != tk.ID {
		return false
	}
	t.current = nil
	return true
}

// Cancel drops the outstanding ticket, if any, so its response is ignored.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = nil
}

// Busy reports whether a request is outstanding.
func (t *Tracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.current != nil
}

// Pending returns the action of the outstanding request, or "".
func (t *Tracker) Pending() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return ""
	}
	return t.current.Action
}
