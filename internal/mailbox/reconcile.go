// Package mailbox holds the forwarding state machine: reconciling server
// listings into an ordered set, cycling the replace target, and turning
// user intent into declarative mutation requests.
package mailbox

import "github.com/nhle/mailto/internal/model"

// Set is the ordered, enabled-only view of a user's mailboxes. It holds at
// most one mailbox per kind, ordered Exchange, IMAP, external.
type Set struct {
	boxes []model.Mailbox
}

// Reconcile projects a raw server listing onto a Set. Disabled boxes are
// dropped and only the first enabled box of each kind is kept.
func Reconcile(raw []model.Mailbox) Set {
	first := make(map[model.Kind]model.Mailbox, len(model.Kinds))
	for _, b := range raw {
		if !b.Enabled || !b.Kind.Valid() {
			continue
		}
		if _, seen := first[b.Kind]; seen {
			continue
		}
		first[b.Kind] = b
	}

	boxes := make([]model.Mailbox, 0, len(first))
	for _, k := range model.Kinds {
		if b, ok := first[k]; ok {
			boxes = append(boxes, b)
		}
	}
	return Set{boxes: boxes}
}

// Len returns the number of mailboxes in the set.
func (s Set) Len() int {
	return len(s.boxes)
}

// At returns the mailbox at index i.
func (s Set) At(i int) model.Mailbox {
	return s.boxes[i]
}

// Boxes returns a copy of the mailboxes in order.
func (s Set) Boxes() []model.Mailbox {
	out := make([]model.Mailbox, len(s.boxes))
	copy(out, s.boxes)
	return out
}

// Has reports whether a mailbox of the given kind is present.
func (s Set) Has(kind model.Kind) bool {
	_, ok := s.Find(kind)
	return ok
}

// Find returns the mailbox of the given kind, if present.
func (s Set) Find(kind model.Kind) (model.Mailbox, bool) {
	for _, b := range s.boxes {
		if b.Kind == kind {
			return b, true
		}
	}
	return model.Mailbox{}, false
}

// Kinds returns the kinds present, in set order.
func (s Set) Kinds() []model.Kind {
	out := make([]model.Kind, len(s.boxes))
	for i, b := range s.boxes {
		out[i] = b.Kind
	}
	return out
}

// SplittingPossible reports whether a new address could be added
// alongside an existing one.
func (s Set) SplittingPossible() bool {
	return len(s.boxes) >= 1
}

// Splitting reports whether mail is currently delivered to more than one
// mailbox. Individual mailboxes can only be removed in that case.
func (s Set) Splitting() bool {
	return len(s.boxes) > 1
}

// InitialTarget returns the replace target installed alongside the set.
func (s Set) InitialTarget() ReplaceTarget {
	if len(s.boxes) == 0 {
		return Split()
	}
	return Replace(0)
}

// Addresses returns the addresses of the set, in order.
func (s Set) Addresses() []string {
	out := make([]string, len(s.boxes))
	for i, b := range s.boxes {
		out[i] = b.Address
	}
	return out
}
