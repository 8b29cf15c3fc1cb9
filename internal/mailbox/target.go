package mailbox

import "fmt"

// ReplaceTarget selects what a newly entered address does: join the
// existing mailboxes (split) or take the place of one of them.
type ReplaceTarget struct {
	index int
}

const splitIndex = -1

// Split returns the target that adds the new address alongside the others.
func Split() ReplaceTarget {
	return ReplaceTarget{index: splitIndex}
}

// Replace returns the target that drops the mailbox at index i.
func Replace(i int) ReplaceTarget {
	return ReplaceTarget{index: i}
}

// IsSplit reports whether t adds rather than replaces.
func (t ReplaceTarget) IsSplit() bool {
	return t.index < 0
}

// Index returns the index being replaced and false for split.
func (t ReplaceTarget) Index() (int, bool) {
	if t.IsSplit() {
		return 0, false
	}
	return t.index, true
}

func (t ReplaceTarget) String() string {
	if t.IsSplit() {
		return "Split"
	}
	return fmt.Sprintf("Replace(%d)", t.index)
}

// Advance moves to the next replace target. With a single mailbox it
// toggles between replacing it and adding alongside it; with several it
// only rotates which one is replaced.
func Advance(current ReplaceTarget, set Set) ReplaceTarget {
	n := set.Len()

	i, replacing := current.Index()
	if !replacing {
		if n >= 1 {
			return Replace(0)
		}
		return Split()
	}

	switch {
	case n == 0:
		return Split()
	case i+1 < n:
		return Replace(i + 1)
	case n == 1:
		return Split()
	default:
		return Replace(0)
	}
}

const (
	labelSplit         = "In addition"
	labelReplace       = "Instead"
	labelReplacePrefix = "Instead of "
)

// TargetLabel describes the target for display next to the address input.
func TargetLabel(target ReplaceTarget, set Set) string {
	i, replacing := target.Index()
	switch {
	case !replacing:
		return labelSplit
	case set.Len() <= 1 || i >= set.Len():
		return labelReplace
	default:
		return labelReplacePrefix + set.At(i).Kind.Label()
	}
}
