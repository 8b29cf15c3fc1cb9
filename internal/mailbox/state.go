package mailbox

import "github.com/nhle/mailto/internal/model"

// StateChangedFunc is invoked with the current set and target every time
// either changes, so a view can redraw.
type StateChangedFunc func(set Set, target ReplaceTarget)

// State is the client-held forwarding state for one user. Every method
// returns a new State; a State is never modified in place.
type State struct {
	Username string
	Status   model.Status
	Set      Set
	Target   ReplaceTarget
	Loaded   bool
}

// NewState returns the state for a freshly authenticated user, before the
// first listing has arrived.
func NewState(username string) State {
	return State{Username: username, Target: Split()}
}

// Install replaces the set with a reconciliation of status and resets the
// target. The two always change together.
func (s State) Install(status model.Status) State {
	set := Reconcile(status.Boxes)
	return State{
		Username: s.Username,
		Status:   status,
		Set:      set,
		Target:   set.InitialTarget(),
		Loaded:   true,
	}
}

// Cycle advances the replace target.
func (s State) Cycle() State {
	s.Target = Advance(s.Target, s.Set)
	return s
}

// Resolve builds the request for adding newAddress under the current target.
func (s State) Resolve(newAddress string) (Request, error) {
	return Resolve(s.Set, s.Target, newAddress)
}

// Dropped lists the mailboxes req would stop delivering to besides the one
// being replaced.
func (s State) Dropped(req Request) []model.Mailbox {
	return Dropped(s.Set, s.Target, req)
}

// Remove builds the request that stops delivery to the given kind.
func (s State) Remove(kind model.Kind) Request {
	return DeletionRequest(s.Set, kind)
}

// Notify hands the set and target to fn, if set.
func (s State) Notify(fn StateChangedFunc) {
	if fn != nil {
		fn(s.Set, s.Target)
	}
}

// Inactive returns mailboxes known to the server that are not part of the
// set: disabled boxes and duplicates of a kind already present.
func (s State) Inactive() []model.Mailbox {
	active := make(map[string]bool, s.Set.Len())
	for _, b := range s.Set.boxes {
		active[b.Address] = true
	}

	var out []model.Mailbox
	for _, b := range s.Status.Boxes {
		if active[b.Address] {
			continue
		}
		out = append(out, b)
	}
	return out
}
