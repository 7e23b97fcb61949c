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

// Package txn implements the transaction tracker (C5, §4.5): active
// transactions keyed by a caller-supplied id, their member region sets with
// a single-slot write-through cache, the many-to-many thread↔transaction
// mapping, and cross-transaction overlap detection.
//
// Every entry point takes its thread id explicitly; resolving "the running
// thread" when an event omits one is the dispatcher's job (package
// dispatch), not this package's — C5 has no notion of a default.
package txn

import (
	"errors"
	"fmt"

	"github.com/pmguard/pmguard/diag"
	"github.com/pmguard/pmguard/region"
	"github.com/pmguard/pmguard/trace"
)

// ErrNoSuchTx is returned when an operation names a tx_id with no live
// descriptor (§4.5.1-4.5.4).
var ErrNoSuchTx = errors.New("txn: no such transaction")

// ErrThreadNotInTx is returned when the calling thread does not participate
// in the named transaction (§4.5.3, §4.5.4).
var ErrThreadNotInTx = errors.New("txn: thread does not participate in transaction")

// Descriptor is a single active transaction (§3.3).
type Descriptor struct {
	TxID    uint64
	Nesting int
	Context trace.Trace

	regions    *region.Set
	cached     region.Span
	cacheValid bool // the original sentinels "empty" as addr==0 && size==0; we track it explicitly instead
}

// CachedRegion returns the transaction's write-through cache slot and
// whether it currently holds a region (§3.3, §8 cache-flushing invariant).
func (d *Descriptor) CachedRegion() (region.Span, bool) {
	return d.cached, d.cacheValid
}

// Regions returns the transaction's flushed member-region set (not
// including whatever currently sits in the cache).
func (d *Descriptor) Regions() *region.Set {
	return d.regions
}

type threadInfo struct {
	threadID uint64
	txIDs    map[uint64]struct{}
}

// Tracker is C5: the whole transaction subsystem.
type Tracker struct {
	transactions map[uint64]*Descriptor
	threads      map[uint64]*threadInfo
	excludes     *region.Set

	transactionsOnly bool

	ootStores *diag.Buffer
	crossTx   *diag.Buffer
}

// NewTracker returns an empty tracker. transactionsOnly mirrors the
// `transactions_only` configuration knob (§6.3): when set, every
// out-of-transaction store to a persistent address is a diagnostic, not
// just ones observed while some thread participates in a transaction.
func NewTracker(buffers *diag.Buffers, transactionsOnly bool) *Tracker {
	return &Tracker{
		transactions:     make(map[uint64]*Descriptor),
		threads:          make(map[uint64]*threadInfo),
		excludes:         region.NewSet(),
		transactionsOnly: transactionsOnly,
		ootStores:        buffers.OutOfTx,
		crossTx:          buffers.CrossTx,
	}
}

func (t *Tracker) threadEntry(threadID uint64) *threadInfo {
	ti, ok := t.threads[threadID]
	if !ok {
		ti = &threadInfo{threadID: threadID, txIDs: make(map[uint64]struct{})}
		t.threads[threadID] = ti
	}
	return ti
}

// Begin implements §4.5.1: look up or create tx_id, associate the calling
// thread, and increment nesting. ctx is only captured the first time tx_id
// is seen.
func (t *Tracker) Begin(txID, threadID uint64, ctx trace.Trace) {
	tx, ok := t.transactions[txID]
	if !ok {
		tx = &Descriptor{TxID: txID, Context: ctx, regions: region.NewSet()}
		t.transactions[txID] = tx
	}

	ti := t.threadEntry(threadID)
	ti.txIDs[txID] = struct{}{}

	tx.Nesting++
}

// End implements §4.5.2.
func (t *Tracker) End(txID uint64) error {
	tx, ok := t.transactions[txID]
	if !ok {
		return ErrNoSuchTx
	}

	tx.Nesting--
	if tx.Nesting > 0 {
		return nil
	}

	for _, ti := range t.threads {
		delete(ti.txIDs, txID)
		if len(ti.txIDs) == 0 {
			delete(t.threads, ti.threadID)
		}
	}
	delete(t.transactions, txID)
	return nil
}

// threadInTx reports whether threadID participates in txID (§4.5.1's
// is_tx_in_thread).
func (t *Tracker) threadInTx(threadID, txID uint64) bool {
	ti, ok := t.threads[threadID]
	if !ok {
		return false
	}
	_, ok = ti.txIDs[txID]
	return ok
}

// flushCache writes tx's cached region into its region set, via
// insert-coalescing, and clears the cache slot (§4.5.1 flush_cache).
func flushCache(tx *Descriptor) {
	if !tx.cacheValid {
		return
	}
	tx.regions.Add(tx.cached.Addr, tx.cached.End)
	tx.cacheValid = false
}

// overlapKind classifies range r against the cached span c for the
// cache-arbitration rules of §4.5.3.
type overlapKind int

const (
	ovDisjoint overlapKind = iota
	ovFull         // r ⊆ c
	ovConverseFull // c ⊆ r
	ovPartial
)

func classifyOverlap(c, r region.Span) overlapKind {
	if c.End <= r.Addr || r.End <= c.Addr {
		return ovDisjoint
	}
	if c.Addr <= r.Addr && r.End <= c.End {
		return ovFull
	}
	if r.Addr <= c.Addr && c.End <= r.End {
		return ovConverseFull
	}
	return ovPartial
}

// AddObj implements §4.5.3: existence/membership checks, the
// cross-transaction overlap scan, then cache arbitration.
func (t *Tracker) AddObj(txID, threadID, addr, end uint64) error {
	tx, ok := t.transactions[txID]
	if !ok {
		return ErrNoSuchTx
	}
	if !t.threadInTx(threadID, txID) {
		return ErrThreadNotInTx
	}

	r := region.Span{Addr: addr, End: end}

	for otherID, other := range t.transactions {
		if otherID == txID {
			continue
		}
		if cached, valid := other.CachedRegion(); valid && classifyOverlap(cached, r) != ovDisjoint {
			t.crossTx.Add(diag.Record{
				Addr: r.Addr, Size: r.End - r.Addr,
				Detail: fmt.Sprintf("tx %d overlaps cached region of tx %d", txID, otherID),
			})
			continue
		}
		if other.regions.Overlaps(addr, end) {
			t.crossTx.Add(diag.Record{
				Addr: r.Addr, Size: r.End - r.Addr,
				Detail: fmt.Sprintf("tx %d overlaps a member region of tx %d", txID, otherID),
			})
		}
	}

	if tx.cacheValid {
		switch classifyOverlap(tx.cached, r) {
		case ovDisjoint:
			flushCache(tx)
		case ovPartial:
			flushCache(tx)
			tx.regions.Remove(addr, end)
		case ovFull:
			// r already inside the cache: nothing to do.
			return nil
		case ovConverseFull:
			// cache is a subset of r: just replace it below.
		}
	}

	tx.cached = r
	tx.cacheValid = true
	return nil
}

// RemoveObj implements §4.5.4.
func (t *Tracker) RemoveObj(txID, threadID, addr, end uint64) error {
	tx, ok := t.transactions[txID]
	if !ok {
		return ErrNoSuchTx
	}
	if !t.threadInTx(threadID, txID) {
		return ErrThreadNotInTx
	}

	if tx.cacheValid && tx.cached.Addr == addr && tx.cached.End == end {
		tx.cacheValid = false
		return nil
	}
	if tx.cacheValid && classifyOverlap(tx.cached, region.Span{Addr: addr, End: end}) != ovDisjoint {
		flushCache(tx)
	}
	tx.regions.Remove(addr, end)
	return nil
}

// AttachThread / DetachThread implement §4.5.6: explicit thread↔tx
// membership changes that leave Nesting untouched. The original source
// mistakenly routes both through remove_obj_from_tx (§9); these implement
// the corrected, documented semantics instead.
func (t *Tracker) AttachThread(txID, threadID uint64) error {
	if _, ok := t.transactions[txID]; !ok {
		return ErrNoSuchTx
	}
	ti := t.threadEntry(threadID)
	ti.txIDs[txID] = struct{}{}
	return nil
}

func (t *Tracker) DetachThread(txID, threadID uint64) error {
	if _, ok := t.transactions[txID]; !ok {
		return ErrNoSuchTx
	}
	if !t.threadInTx(threadID, txID) {
		return ErrThreadNotInTx
	}
	ti := t.threads[threadID]
	delete(ti.txIDs, txID)
	if len(ti.txIDs) == 0 {
		delete(t.threads, threadID)
	}
	return nil
}

// AddGlobalExclude inserts a region into the global exclude set (§6.1
// AddGlobalExclude); fully-excluded stores never reach out-of-tx tracking.
func (t *Tracker) AddGlobalExclude(addr, end uint64) {
	t.excludes.Add(addr, end)
}

// storeInTx implements §4.5.1's is_store_in_tx / §4.5.5 step 3: is [addr,
// end) fully contained in tx's cache or region set.
func storeInTx(tx *Descriptor, addr, end uint64) bool {
	if cached, valid := tx.CachedRegion(); valid && cached.Addr <= addr && end <= cached.End {
		return true
	}
	flushCache(tx)
	return tx.regions.Contains(addr, end)
}

// HandleStore implements §4.5.5: the store-membership test run on every
// persistent store after C3 ingestion. Returns true if the store is a
// member of some transaction (or globally excluded). When it is not, an
// out-of-transaction diagnostic is recorded as a side effect if the thread
// participates in some transaction or transactionsOnly is set; a thread in
// no transaction with transactionsOnly off records nothing.
func (t *Tracker) HandleStore(threadID, addr, end uint64, ctx trace.Trace) bool {
	if t.excludes.Contains(addr, end) {
		return true
	}

	ti, ok := t.threads[threadID]
	if !ok {
		if t.transactionsOnly {
			t.recordOutOfTx(addr, end, ctx)
		}
		return false
	}

	for txID := range ti.txIDs {
		if storeInTx(t.transactions[txID], addr, end) {
			return true
		}
	}

	t.recordOutOfTx(addr, end, ctx)
	return false
}

func (t *Tracker) recordOutOfTx(addr, end uint64, ctx trace.Trace) {
	t.ootStores.Add(diag.Record{Addr: addr, Size: end - addr, Context: ctx})
}

// ActiveCount returns the number of live transactions, for the §6.4 report
// and the §6.3 error_summary aggregate.
func (t *Tracker) ActiveCount() int { return len(t.transactions) }

// Lookup returns the descriptor for txID, if live.
func (t *Tracker) Lookup(txID uint64) (*Descriptor, bool) {
	tx, ok := t.transactions[txID]
	return tx, ok
}
