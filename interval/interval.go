/*
Copyright (C) 2023-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package interval implements the ordered, non-overlapping interval set of
// §4.1: an address-keyed map under the "disjoint-before" ordering, with
// insertion-time coalescing and deletion-time splitting. It is generic over
// the item type so the same tree shape backs both plain address regions
// (package region) and stateful store records (package store), the way
// storage.StorageIndex in the teacher repo backs both its sorted main
// storage and its delta btree with one ordered-structure primitive.
package interval

import "github.com/google/btree"

// Bounded is anything keyed by a half-open byte range [Addr, End).
type Bounded interface {
	Bounds() (addr, end uint64)
}

// Resizable additionally knows how to produce a copy of itself with new
// bounds, preserving whatever payload makes sense for the shrunk/grown
// range (for a plain region, nothing; for a store record, the state,
// context and a byte-adjusted value — see store.Record.WithBounds).
type Resizable[T any] interface {
	Bounded
	WithBounds(addr, end uint64) T
}

// Classification is the three-way result of Classify, matching
// is_in_mapping_set's 0/1/2 encoding exactly (§6.1 CheckMapping).
type Classification int

const (
	Absent  Classification = 0
	Full    Classification = 1
	Partial Classification = 2
)

func (c Classification) String() string {
	switch c {
	case Absent:
		return "absent"
	case Full:
		return "full"
	default:
		return "partial"
	}
}

// degree is the btree branching factor; the sets here are typically small
// (dozens to low thousands of live entries), so this is not tuned further.
const degree = 32

func less[T Bounded](a, b T) bool {
	_, aEnd := a.Bounds()
	bAddr, _ := b.Bounds()
	return aEnd <= bAddr
}

// Set is an ordered collection of pairwise non-overlapping items of type T,
// queryable by overlap. Two items are considered "equal" by the underlying
// tree whenever they overlap at all — callers are responsible for the
// invariant that at most one stored item ever overlaps a given probe.
type Set[T Resizable[T]] struct {
	tree *btree.BTreeG[T]
}

// New returns an empty interval set.
func New[T Resizable[T]]() *Set[T] {
	return &Set[T]{tree: btree.NewG[T](degree, less[T])}
}

// Len returns the number of stored items.
func (s *Set[T]) Len() int {
	return s.tree.Len()
}

// Get returns the stored item overlapping [addr, end), if any.
func (s *Set[T]) Get(addr, end uint64) (T, bool) {
	var zero T
	probe := zero.WithBounds(addr, end)
	return s.tree.Get(probe)
}

// Delete removes and returns the stored item overlapping [addr, end), if any.
func (s *Set[T]) Delete(addr, end uint64) (T, bool) {
	var zero T
	probe := zero.WithBounds(addr, end)
	return s.tree.Delete(probe)
}

// DeleteItem removes the exact item (by its own bounds).
func (s *Set[T]) DeleteItem(item T) (T, bool) {
	return s.tree.Delete(item)
}

// Put inserts item, replacing one stored item it overlaps, if any; other
// overlapping items are left in place. Callers that must not clobber an
// overlapping neighbor should check Get first.
func (s *Set[T]) Put(item T) {
	s.tree.ReplaceOrInsert(item)
}

// Ascend visits every stored item in address order; iter returning false
// stops the traversal. Matches the "snapshot or restart" tolerance §9 asks
// of iterators that mutate mid-traversal: Ascend itself does not tolerate
// concurrent mutation (btree panics on that), so callers that need to
// mutate while iterating collect a key snapshot first (see
// store.Tracker.transitionState for the pattern).
func (s *Set[T]) Ascend(iter func(T) bool) {
	s.tree.Ascend(func(item T) bool { return iter(item) })
}

// Overlapping returns every stored item overlapping [addr, end), in address
// order. Used where a single Get is not enough to decide (e.g. flush and
// fence, which apply to every store a range touches, not just one).
//
// This walks AscendGreaterOrEqual from a single-byte probe at addr rather
// than AscendRange up to an end probe: under the disjoint-before Less
// (overlap => equal), a stored item [x, y) with x < end < y compares equal
// to — not less than — a probe [end, end+1), so it would be excluded from
// an AscendRange upper bound before the per-item filter below ever sees it.
// That silently dropped every stored record straddling or containing the
// query range. Stopping explicitly once an item's own start reaches end
// avoids relying on the comparator for the upper bound at all.
func (s *Set[T]) Overlapping(addr, end uint64) []T {
	var out []T
	var zero T
	s.tree.AscendGreaterOrEqual(zero.WithBounds(addr, addr+1), func(item T) bool {
		ia, ie := item.Bounds()
		if ia >= end {
			return false
		}
		if ia < end && addr < ie {
			out = append(out, item)
		}
		return true
	})
	return out
}

func subOne(v uint64) uint64 {
	if v == 0 {
		return 0
	}
	return v - 1
}

// InsertCoalescing inserts probe, unconditionally absorbing any neighbor
// that touches (no gap between them) or overlaps it, per §4.1's
// insert_coalescing; a neighbor separated by a gap of one byte or more is
// not absorbed.
// Returns the final, possibly grown, item actually stored.
func InsertCoalescing[T Resizable[T]](s *Set[T], probe T) T {
	return InsertCoalescingIf(s, probe, func(T, T) bool { return true })
}

// InsertCoalescingIf is InsertCoalescing with an extra gate: a touching
// neighbor is only absorbed when mergeable(probe, neighbor) holds. This is
// what store.Tracker uses for its "merge adjacent, track no overwrites"
// mode (§4.3.2), where two adjacent stores only merge if they share state
// and (trace-relaxed) context.
func InsertCoalescingIf[T Resizable[T]](s *Set[T], probe T, mergeable func(probe, neighbor T) bool) T {
	var zero T
	for {
		addr, end := probe.Bounds()
		scanAddr := subOne(addr)
		scanEnd := end + 1
		scanProbe := zero.WithBounds(scanAddr, scanEnd)
		neighbor, ok := s.tree.Get(scanProbe)
		if !ok {
			break
		}
		if !mergeable(probe, neighbor) {
			break
		}
		s.tree.Delete(neighbor)
		na, ne := neighbor.Bounds()
		lo := addr
		if na < lo {
			lo = na
		}
		hi := end
		if ne > hi {
			hi = ne
		}
		probe = probe.WithBounds(lo, hi)
	}
	s.tree.ReplaceOrInsert(probe)
	return probe
}

// RemoveSplitting removes every portion of every stored item intersecting
// [addr, end), keeping non-intersecting head/tail slivers as separate items
// (§4.1's remove_splitting). Returns the slivers that were re-inserted, for
// callers that want to know what survived.
func RemoveSplitting[T Resizable[T]](s *Set[T], addr, end uint64) []T {
	var survivors []T
	var zero T
	probe := zero.WithBounds(addr, end)
	for {
		old, ok := s.tree.Delete(probe)
		if !ok {
			break
		}
		oa, oe := old.Bounds()
		switch {
		case oa >= addr && oe <= end:
			// stored fully inside (or equal to) the removed range: drop it.
		case oa < addr && oe > end:
			// stored strictly contains the removed range: split in two.
			left := old.WithBounds(oa, addr)
			right := old.WithBounds(end, oe)
			s.tree.ReplaceOrInsert(left)
			s.tree.ReplaceOrInsert(right)
			survivors = append(survivors, left, right)
		case oa >= addr && oe > end:
			// head overlap: trim to the tail sliver.
			trimmed := old.WithBounds(end, oe)
			s.tree.ReplaceOrInsert(trimmed)
			survivors = append(survivors, trimmed)
		default:
			// tail overlap (oa < addr && oe <= end): trim to the head sliver.
			trimmed := old.WithBounds(oa, addr)
			s.tree.ReplaceOrInsert(trimmed)
			survivors = append(survivors, trimmed)
		}
	}
	return survivors
}

// Classify reports whether [addr, end) is absent from, fully contained in a
// single stored item of, or merely overlapping (Partial) the set. Because
// stored items are pairwise non-overlapping, a single stored item fully
// containing the probe is necessarily the only overlapping item, so one
// lookup suffices — mirroring is_in_mapping_set's single OSetGen_Lookup.
func Classify[T Resizable[T]](s *Set[T], addr, end uint64) Classification {
	item, ok := s.Get(addr, end)
	if !ok {
		return Absent
	}
	ia, ie := item.Bounds()
	if ia <= addr && end <= ie {
		return Full
	}
	return Partial
}
