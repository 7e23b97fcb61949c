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

// Package region implements the region registry (C4, §4.4, §3.2): plain
// address intervals with no payload beyond their own bounds, used both for
// registered persistent mappings and for per-transaction member sets.
package region

import "github.com/pmguard/pmguard/interval"

// Span is a half-open byte range with no payload — a "region" in §3.2.
type Span struct {
	Addr, End uint64
}

// Bounds implements interval.Bounded.
func (s Span) Bounds() (uint64, uint64) { return s.Addr, s.End }

// WithBounds implements interval.Resizable: a region carries no payload, so
// resizing is just re-keying.
func (s Span) WithBounds(addr, end uint64) Span { return Span{addr, end} }

// Size is the region's length in bytes.
func (s Span) Size() uint64 { return s.End - s.Addr }

// Set is an ordered, non-overlapping collection of regions (§3.2).
type Set struct {
	items *interval.Set[Span]
}

// NewSet returns an empty region set.
func NewSet() *Set {
	return &Set{items: interval.New[Span]()}
}

// Add registers a region, coalescing it with any touching or overlapping
// neighbor (§4.1 insert_coalescing). Returns the final, possibly grown, span.
func (s *Set) Add(addr, end uint64) Span {
	return interval.InsertCoalescing(s.items, Span{addr, end})
}

// Remove deletes [addr, end) from the set, splitting any region that only
// partially overlaps it (§4.1 remove_splitting).
func (s *Set) Remove(addr, end uint64) {
	interval.RemoveSplitting(s.items, addr, end)
}

// Classify answers whether [addr, end) is absent from, fully inside, or
// partially overlapping the set (§4.1 classify, §6.1 CheckMapping).
func (s *Set) Classify(addr, end uint64) interval.Classification {
	return interval.Classify(s.items, addr, end)
}

// Overlaps reports whether [addr, end) touches any stored region at all.
func (s *Set) Overlaps(addr, end uint64) bool {
	_, ok := s.items.Get(addr, end)
	return ok
}

// Contains reports whether [addr, end) is fully covered by a single stored
// region (the persistence-filter fast path, §4.3.2 step 1, uses Overlaps;
// transaction membership, §4.5.5, uses Contains).
func (s *Set) Contains(addr, end uint64) bool {
	return s.Classify(addr, end) == interval.Full
}

// Len returns the number of stored regions.
func (s *Set) Len() int { return s.items.Len() }

// Ascend visits every stored region in address order.
func (s *Set) Ascend(iter func(Span) bool) { s.items.Ascend(iter) }

// Registry bundles the two independent region sets C4 owns: registered
// persistent mappings (consulted on every store, §4.3.2 step 1) and the
// optional set of loggable regions (§6.2's gating for per-store log lines).
type Registry struct {
	Mappings *Set
	Loggable *Set
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{Mappings: NewSet(), Loggable: NewSet()}
}
