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

// Package store implements the store tracker (C3, §4.3): the durability
// state machine over live store records, its two overwrite-handling modes,
// and the split-on-flush/fence transitions.
package store

import (
	"github.com/pmguard/pmguard/diag"
	"github.com/pmguard/pmguard/interval"
	"github.com/pmguard/pmguard/trace"
)

// State is a store record's position in the durability state machine
// (§4.3.1).
type State int

const (
	Dirty State = iota
	Flushed
	Fenced
	Committed
)

func (s State) String() string {
	switch s {
	case Dirty:
		return "DIRTY"
	case Flushed:
		return "FLUSHED"
	case Fenced:
		return "FENCED"
	case Committed:
		return "COMMITTED"
	default:
		return "UNKNOWN"
	}
}

// Record is a single observed write to persistent memory (§3.1).
type Record struct {
	Addr, End uint64
	Value     uint64
	BlockNum  uint64
	Context   trace.Trace
	State     State
}

// Bounds implements interval.Bounded.
func (r Record) Bounds() (uint64, uint64) { return r.Addr, r.End }

// maskLow keeps only the low widthBytes bytes of v, zeroing the rest.
func maskLow(v uint64, widthBytes uint64) uint64 {
	if widthBytes >= 8 {
		return v
	}
	return v & ((uint64(1) << (widthBytes * 8)) - 1)
}

// WithBounds implements interval.Resizable for §4.3.5's value masking: the
// resulting Value is always r.Value shifted down by the byte offset of the
// new window's start relative to r's own start (zero if the window starts
// at or before r.Addr), then masked to the new window's width. This single
// formula covers every case C1 calls WithBounds for:
//
//   - head sliver kept on removal (addr == r.Addr, end < r.End): shift 0,
//     mask to the shrunk width — matches "low-byte mask" for the retained
//     low bytes.
//   - tail sliver kept on removal (addr > r.Addr, end == r.End): shift by
//     the dropped head's byte length, then mask to the tail's width —
//     matches "shift down, then mask" for the retained high bytes.
//   - growth during coalescing (addr <= r.Addr, end >= r.End): shift 0
//     (clamped), mask widens past the original width and is a no-op, so
//     Value is preserved exactly as the original C's merge_stores leaves it.
//
// The literal wording of §4.3.5 ("low-byte shift for the left sliver,
// low-byte mask for the right sliver") has the two cases backwards; so does
// the split_stores routine it was distilled from, which shifts the kept
// head sliver by a raw byte count with no *8 and masks the kept tail
// sliver with no shift at all. This implements the self-consistent
// reading — mask-only for the retained low bytes, shift-then-mask for the
// retained high bytes — rather than carrying the original's bug forward.
func (r Record) WithBounds(addr, end uint64) Record {
	out := r
	out.Addr, out.End = addr, end
	shiftBytes := int64(addr) - int64(r.Addr)
	if shiftBytes > 0 {
		out.Value = r.Value >> uint(shiftBytes*8)
	} else {
		out.Value = r.Value
	}
	out.Value = maskLow(out.Value, end-addr)
	return out
}

// Config mirrors the §6.3 knobs that shape store-tracker behavior.
type Config struct {
	TrackMultipleStores bool
	IndiffWindow        uint64
	CheckFlush          bool
	ForceFlushAlign     bool
	FlushAlignSize      uint64
	WeakClflush         bool
}

// Tracker is C3: the store set plus the configuration that governs
// ingestion and flush/fence behavior.
type Tracker struct {
	records *interval.Set[Record]
	cfg     Config

	overwrite      *diag.Buffer
	redundantFlush *diag.Buffer
	superfluous    *diag.Buffer
}

// NewTracker returns an empty store tracker.
func NewTracker(cfg Config, buffers *diag.Buffers) *Tracker {
	return &Tracker{
		records:        interval.New[Record](),
		cfg:            cfg,
		overwrite:      buffers.Overwrite,
		redundantFlush: buffers.RedundantFlush,
		superfluous:    buffers.Superfluous,
	}
}

func mergeable(a, b Record) bool {
	return a.State == b.State && trace.Equal(a.Context, b.Context)
}

// Store implements §4.3.2 steps 2-4: build a DIRTY record and ingest it
// using whichever overwrite-handling mode is configured. Callers are
// responsible for the persistence filter (§4.3.2 step 1, package region)
// and for the transaction membership check (step 5, package txn) that
// follow. Returns the record as finally stored (possibly merged/grown),
// for callers that log or forward it.
func (t *Tracker) Store(addr, end, value, blockNum uint64, ctx trace.Trace) Record {
	rec := Record{Addr: addr, End: end, Value: maskLow(value, end-addr), BlockNum: blockNum, Context: ctx, State: Dirty}

	if t.cfg.TrackMultipleStores {
		return t.storeTracked(rec)
	}
	return t.storeSimple(rec)
}

// storeSimple implements §4.3.2's "Simple mode": overlapping records are
// dropped outright (no overwrite diagnostic, no preserved slivers — this
// follows §4.3.2's explicit wording, which departs from the original
// split_stores/add_and_merge_store pairing that always preserves
// non-overlapping slivers even here), then the new record is merged with
// up to two mergeable touching neighbors.
func (t *Tracker) storeSimple(rec Record) Record {
	for {
		if _, ok := t.records.Get(rec.Addr, rec.End); ok {
			t.records.Delete(rec.Addr, rec.End)
			continue
		}
		break
	}
	return interval.InsertCoalescingIf(t.records, rec, mergeable)
}

// storeTracked implements §4.3.2's overwrite-tracking mode: every
// overlapping record is either recognized as an idempotent rewrite
// (discarded silently) or split around the new range, with the clobbered
// fragment reported as a MultipleOverwrite diagnostic (§7) and the
// non-overlapping slivers preserved. The new record is always inserted
// afterward, mirroring handle_with_mult_stores's unconditional insert at
// the end of its loop.
func (t *Tracker) storeTracked(rec Record) Record {
	for {
		old, ok := t.records.Get(rec.Addr, rec.End)
		if !ok {
			break
		}

		if t.isIdempotentRewrite(rec, old) {
			t.records.DeleteItem(old)
			continue
		}

		t.records.DeleteItem(old)
		oa, oe := old.Bounds()
		lo, hi := maxU64(oa, rec.Addr), minU64(oe, rec.End)
		t.overwrite.Add(diag.Record{
			Category: diag.MultipleOverwrite,
			Addr:     lo, Size: hi - lo,
			State:   old.State.String(),
			Context: old.Context,
		})
		switch {
		case oa >= rec.Addr && oe <= rec.End:
			// fully overwritten: nothing survives.
		case oa < rec.Addr && oe > rec.End:
			t.records.Put(old.WithBounds(oa, rec.Addr))
			t.records.Put(old.WithBounds(rec.End, oe))
		case oa >= rec.Addr:
			t.records.Put(old.WithBounds(rec.End, oe))
		default:
			t.records.Put(old.WithBounds(oa, rec.Addr))
		}
	}

	t.records.Put(rec)
	return rec
}

// isIdempotentRewrite implements the §4.3.2 fast path: a re-store of the
// exact same (addr, size, value) within indiff_window superblocks is
// treated as a no-op rewrite, not an overwrite. Values are masked to their
// own byte width before comparison (§9: the original compares at word
// granularity even for narrower stores, which can false-negative on
// garbage high bits; this masks first to avoid that).
func (t *Tracker) isIdempotentRewrite(newRec, old Record) bool {
	if newRec.BlockNum < old.BlockNum {
		return false
	}
	if newRec.BlockNum-old.BlockNum >= t.cfg.IndiffWindow {
		return false
	}
	return newRec.Addr == old.Addr && newRec.End == old.End &&
		maskLow(newRec.Value, newRec.End-newRec.Addr) == maskLow(old.Value, old.End-old.Addr)
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// alignRange widens [addr, end) to the enclosing line-aligned range
// (§4.3.3's flush-range alignment, §8 scenario 8).
func alignRange(addr, end, line uint64) (uint64, uint64) {
	if line == 0 {
		return addr, end
	}
	alignedAddr := addr - addr%line
	alignedEnd := end
	if rem := end % line; rem != 0 {
		alignedEnd = end + (line - rem)
	}
	return alignedAddr, alignedEnd
}

// Flush implements §4.3.3's split-on-flush.
func (t *Tracker) Flush(addr, end uint64) {
	if t.cfg.ForceFlushAlign {
		addr, end = alignRange(addr, end, t.cfg.FlushAlignSize)
	}

	items := t.records.Overlapping(addr, end)
	if len(items) == 0 {
		if t.cfg.CheckFlush {
			t.superfluous.Add(diag.Record{Category: diag.SuperfluousFlush, Addr: addr, Size: end - addr})
		}
		return
	}

	for _, old := range items {
		if old.State != Dirty {
			if t.cfg.CheckFlush {
				t.redundantFlush.Add(diag.Record{
					Category: diag.RedundantFlush,
					Addr:     old.Addr, Size: old.End - old.Addr,
					State: old.State.String(), Context: old.Context,
				})
			}
			continue
		}

		oa, oe := old.Bounds()
		t.records.DeleteItem(old)

		lo, hi := maxU64(oa, addr), minU64(oe, end)
		flushed := old.WithBounds(lo, hi)
		flushed.State = Flushed
		t.records.Put(flushed)

		if oa < lo {
			t.records.Put(old.WithBounds(oa, lo))
		}
		if oe > hi {
			t.records.Put(old.WithBounds(hi, oe))
		}
	}
}

// transitionState moves every record in state from to state to, snapshotting
// the affected keys first so mid-traversal mutation is safe (§9).
func (t *Tracker) transitionState(from, to State) {
	var matched []Record
	t.records.Ascend(func(r Record) bool {
		if r.State == from {
			matched = append(matched, r)
		}
		return true
	})
	for _, r := range matched {
		t.records.DeleteItem(r)
		r.State = to
		t.records.Put(r)
	}
}

func (t *Tracker) removeByState(state State) {
	var matched []Record
	t.records.Ascend(func(r Record) bool {
		if r.State == state {
			matched = append(matched, r)
		}
		return true
	})
	for _, r := range matched {
		t.records.DeleteItem(r)
	}
}

// Fence applies §4.3.1's fence transitions. In the default configuration,
// FLUSHED becomes FENCED and any COMMITTED record is dropped; in
// weak-clflush mode FLUSHED is dropped directly and FENCED/COMMITTED never
// arise.
func (t *Tracker) Fence() {
	if t.cfg.WeakClflush {
		t.removeByState(Flushed)
		return
	}
	t.transitionState(Flushed, Fenced)
	t.removeByState(Committed)
}

// Commit applies §4.3.1's commit transition (FENCED -> COMMITTED). A no-op
// in weak-clflush mode, where FENCED never arises.
func (t *Tracker) Commit() {
	if t.cfg.WeakClflush {
		return
	}
	t.transitionState(Fenced, Committed)
}

// SetClean implements the §6.1 SetClean event: an out-of-band "this range
// is durable, stop tracking it" signal, using the same split-preserving C1
// removal as any other region edit.
func (t *Tracker) SetClean(addr, end uint64) {
	interval.RemoveSplitting(t.records, addr, end)
}

// Dangling returns every record still live in the store set, in address
// order — the §7 DanglingDirty diagnostic surfaced by the final report.
func (t *Tracker) Dangling() []Record {
	var out []Record
	t.records.Ascend(func(r Record) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Len returns the number of live records.
func (t *Tracker) Len() int { return t.records.Len() }
