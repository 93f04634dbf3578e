// Package view implements the node's bounded partial view of the overlay:
// the Descriptor Store from spec.md §4.1. The view is the only component the
// Shuffle Engine mutates; the Dissemination Engine only reads it.
package view

import (
	"github.com/mcastellin/cyclonode/internal/clock"
	"github.com/mcastellin/cyclonode/internal/descriptor"
)

// View holds at most Length descriptors, never duplicated by id and never
// containing selfID. It is not safe for concurrent use; the node's single
// event loop owns it exclusively (spec.md §5, §9).
type View struct {
	Length int
	selfID string
	clk    clock.Clock

	entries []descriptor.Peer
}

// New builds an empty view bounded to length entries, excluding selfID.
func New(length int, selfID string, clk clock.Clock) *View {
	return &View{
		Length:  length,
		selfID:  selfID,
		clk:     clk,
		entries: make([]descriptor.Peer, 0, length),
	}
}

// Count returns the number of descriptors currently held.
func (v *View) Count() int {
	return len(v.entries)
}

func (v *View) indexOf(id string) int {
	for i, d := range v.entries {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// Insert rejects d if its id is self's, adopts d's age if its id is already
// present (a refresh), and otherwise appends d when there is room. Returns
// true iff a new entry was
// structurally appended. A full view rejects a new id — displacement is the
// Shuffle Engine's job, not the view's (spec.md §4.1).
func (v *View) Insert(d descriptor.Peer) bool {
	if d.ID == v.selfID {
		return false
	}
	if idx := v.indexOf(d.ID); idx >= 0 {
		v.entries[idx].Timestamp = d.Timestamp
		return false
	}
	if len(v.entries) >= v.Length {
		return false
	}
	v.entries = append(v.entries, d)
	return true
}

// Refresh behaves like Insert but also reports success on the
// already-present path, since that path is itself the desired update. Used
// to reinsert an exchange partner after a completed shuffle round.
func (v *View) Refresh(d descriptor.Peer) bool {
	if d.ID == v.selfID {
		return false
	}
	if idx := v.indexOf(d.ID); idx >= 0 {
		v.entries[idx].Timestamp = d.Timestamp
		return true
	}
	if len(v.entries) >= v.Length {
		return false
	}
	v.entries = append(v.entries, d)
	return true
}

// Remove deletes and returns the descriptor at index, shifting remaining
// entries down. ok is false if index is out of range.
func (v *View) Remove(index int) (d descriptor.Peer, ok bool) {
	if index < 0 || index >= len(v.entries) {
		return descriptor.Peer{}, false
	}
	d = v.entries[index]
	v.entries = append(v.entries[:index], v.entries[index+1:]...)
	return d, true
}

// Oldest returns the index of the descriptor with the greatest age (ties
// broken by lowest index), or -1 if the view is empty.
func (v *View) Oldest() int {
	if len(v.entries) == 0 {
		return -1
	}
	now := v.clk.Now()
	oldestIdx := 0
	oldestAge := v.entries[0].Age(now)
	for i := 1; i < len(v.entries); i++ {
		if age := v.entries[i].Age(now); age > oldestAge {
			oldestAge = age
			oldestIdx = i
		}
	}
	return oldestIdx
}

// Sample removes up to k uniformly-random descriptors and returns them in
// selection order. If k exceeds Count(), k is clamped to Count(). This is a
// Fisher-Yates partial shuffle: every subset of the resulting size is
// equiprobable (spec.md §4.1, §8 "sampling is removal-then-return").
func (v *View) Sample(k int) []descriptor.Peer {
	n := len(v.entries)
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	// Build a scratch index list and partially Fisher-Yates shuffle it,
	// exactly as the reference C select_random_descriptors does, then
	// remove the chosen entries from entries in descending index order so
	// earlier removals don't invalidate later indices.
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}

	selectedIdx := make([]int, 0, k)
	result := make([]descriptor.Peer, 0, k)
	available := n
	for i := 0; i < k; i++ {
		j := v.clk.Intn(available)
		idx := idxs[j]
		selectedIdx = append(selectedIdx, idx)
		result = append(result, v.entries[idx])

		available--
		idxs[j] = idxs[available]
	}

	// Remove the chosen entries from the underlying slice highest-index
	// first so removing one doesn't shift the position of another that's
	// still pending removal.
	sortDesc(selectedIdx)
	for _, idx := range selectedIdx {
		v.entries = append(v.entries[:idx], v.entries[idx+1:]...)
	}
	return result
}

// Snapshot returns a read-only copy of the current entries, used by the
// Dissemination Engine.
func (v *View) Snapshot() []descriptor.Peer {
	out := make([]descriptor.Peer, len(v.entries))
	copy(out, v.entries)
	return out
}

func sortDesc(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] < s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
