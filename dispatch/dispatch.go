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

// Package dispatch implements the event dispatcher (C6, §6.1): it owns C3,
// C4, C5 and the shared diagnostic buffers, and routes each abstract event
// to the right collaborator. Control flow is: external events → dispatcher
// → C4 persistence filter → C3 state transitions → C5 transaction
// membership (§2).
//
// None of this package's event payloads carry a thread id — per §4.5, the
// "running thread" is ambient, supplied by whichever goroutine is calling
// in on behalf of a given guest thread. WithThread binds that ambient
// value using goroutine-local storage, the way the host's instrumentation
// thread would know which guest thread issued the event it is replaying.
package dispatch

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dc0d/onexit"
	"github.com/jtolds/gls"

	"github.com/pmguard/pmguard/config"
	"github.com/pmguard/pmguard/diag"
	"github.com/pmguard/pmguard/interval"
	"github.com/pmguard/pmguard/logfmt"
	"github.com/pmguard/pmguard/region"
	"github.com/pmguard/pmguard/report"
	"github.com/pmguard/pmguard/store"
	"github.com/pmguard/pmguard/trace"
	"github.com/pmguard/pmguard/txn"
)

var threadMgr = gls.NewContextManager()

type threadKey struct{}

// WithThread runs fn with threadID bound as the ambient "running thread"
// for every dispatcher call made during fn, including by goroutines it
// spawns with gls-aware helpers. Hosts driving this package from one
// goroutine per guest thread call this once at the top of that goroutine.
func WithThread(threadID uint64, fn func()) {
	threadMgr.SetValues(gls.Values{threadKey{}: threadID}, fn)
}

// currentThread returns the ambient thread id bound by WithThread, or 0 if
// none is bound (a lone, default "thread zero" for calls made outside any
// WithThread, as some tests and the last store of the cmd/pmguard demo do).
func currentThread() uint64 {
	if v, ok := threadMgr.GetValue(threadKey{}); ok {
		return v.(uint64)
	}
	return 0
}

// Dispatcher is C6: the single process-wide context struct threaded
// through every entry point (§9), holding C3/C4/C5 and the shared
// diagnostic buffers and configuration.
type Dispatcher struct {
	cfg config.Options

	buffers *diag.Buffers
	regions *region.Registry
	stores  *store.Tracker
	txs     *txn.Tracker

	blockNum uint64

	loggingEnabled bool
	log            *logfmt.Emitter
}

// New constructs a dispatcher from cfg, wiring C3/C4/C5 together the way
// §2's control-flow diagram describes.
func New(cfg config.Options) *Dispatcher {
	buffers := diag.NewBuffers(nil)
	d := &Dispatcher{
		cfg:            cfg,
		buffers:        buffers,
		regions:        region.NewRegistry(),
		stores:         store.NewTracker(storeConfig(cfg), buffers),
		txs:            txn.NewTracker(buffers, cfg.TransactionsOnly),
		loggingEnabled: cfg.LogStores,
		log:            logfmt.NewEmitter(),
	}

	if cfg.PrintSummary {
		onexit.Register(func() {
			fmt.Print(d.Report().String())
		})
	}

	return d
}

func storeConfig(cfg config.Options) store.Config {
	return store.Config{
		TrackMultipleStores: cfg.TrackMultipleStores,
		IndiffWindow:        cfg.IndiffWindow,
		CheckFlush:          cfg.CheckFlush,
		ForceFlushAlign:     cfg.ForceFlushAlign,
		FlushAlignSize:      config.DetectFlushAlignSize(),
		WeakClflush:         cfg.WeakClflush,
	}
}

// SbEnter increments the superblock counter (§6.1).
func (d *Dispatcher) SbEnter() {
	atomic.AddUint64(&d.blockNum, 1)
}

func (d *Dispatcher) shouldLogStore(addr, end uint64) bool {
	if !d.loggingEnabled {
		return false
	}
	if d.regions.Loggable.Len() == 0 {
		return true
	}
	return d.regions.Loggable.Classify(addr, end) == interval.Full
}

// Store implements §4.3.2's full ingestion pipeline: the persistence
// filter (C4), C3 ingestion, and the C5 transaction membership check.
func (d *Dispatcher) Store(addr, size, value uint64, ctx trace.Trace) {
	end := addr + size
	if !d.regions.Mappings.Overlaps(addr, end) {
		return
	}

	if d.shouldLogStore(addr, end) {
		d.log.Store(addr, value, size)
	}

	rec := d.stores.Store(addr, end, value, atomic.LoadUint64(&d.blockNum), ctx)
	d.txs.HandleStore(currentThread(), rec.Addr, rec.End, ctx)
}

// StoreWide decomposes a wide vector store into 64-bit lanes (§9's
// wide-vector dispatcher): one Store call per 8-byte lane, addresses
// increasing, each lane's value taken verbatim from lanes.
func (d *Dispatcher) StoreWide(addr uint64, lanes []uint64, ctx trace.Trace) {
	for i, v := range lanes {
		d.Store(addr+uint64(i)*8, 8, v, ctx)
	}
}

// Flush implements §6.1's Flush event.
func (d *Dispatcher) Flush(addr, size uint64) {
	end := addr + size
	d.stores.Flush(addr, end)
	if d.shouldLogStore(addr, end) {
		d.log.Flush(addr, size)
	}
}

// Fence implements §6.1's Fence event.
func (d *Dispatcher) Fence() {
	d.stores.Fence()
	if d.loggingEnabled {
		d.log.Fence()
	}
}

// Commit implements §6.1's Commit event (default configuration only — under
// weak_clflush the store set is left unchanged, as store.Tracker.Commit
// does, though a COMMIT log record is still emitted when logging is on).
func (d *Dispatcher) Commit() {
	d.stores.Commit()
	if d.loggingEnabled {
		d.log.Commit()
	}
}

// RegisterMapping / RemoveMapping implement §6.1's C4 insert/remove.
func (d *Dispatcher) RegisterMapping(addr, size uint64) {
	d.regions.Mappings.Add(addr, addr+size)
}

func (d *Dispatcher) RemoveMapping(addr, size uint64) {
	d.regions.Mappings.Remove(addr, addr+size)
}

// CheckMapping implements §6.1's CheckMapping event.
func (d *Dispatcher) CheckMapping(addr, size uint64) interval.Classification {
	return d.regions.Mappings.Classify(addr, addr+size)
}

func resolveTxID(txID *uint64) uint64 {
	if txID != nil {
		return *txID
	}
	return currentThread()
}

// BeginTx implements §6.1's BeginTx(id?): a nil txID defaults to the
// running thread id.
func (d *Dispatcher) BeginTx(txID *uint64, ctx trace.Trace) {
	d.txs.Begin(resolveTxID(txID), currentThread(), ctx)
}

// EndTx implements §6.1's EndTx(id?).
func (d *Dispatcher) EndTx(txID *uint64) error {
	return d.txs.End(resolveTxID(txID))
}

// AddObj / RemoveObj implement §6.1's transaction member-region events.
func (d *Dispatcher) AddObj(txID, addr, size uint64) error {
	return d.txs.AddObj(txID, currentThread(), addr, addr+size)
}

func (d *Dispatcher) RemoveObj(txID, addr, size uint64) error {
	return d.txs.RemoveObj(txID, currentThread(), addr, addr+size)
}

// AttachThread / DetachThread implement §6.1's explicit membership events
// (§4.5.6, and the corrected semantics noted in §9).
func (d *Dispatcher) AttachThread(txID uint64) error {
	return d.txs.AttachThread(txID, currentThread())
}

func (d *Dispatcher) DetachThread(txID uint64) error {
	return d.txs.DetachThread(txID, currentThread())
}

// AddLogRegion / RemoveLogRegion implement §6.1's loggable-regions events.
func (d *Dispatcher) AddLogRegion(addr, size uint64) {
	d.regions.Loggable.Add(addr, addr+size)
}

func (d *Dispatcher) RemoveLogRegion(addr, size uint64) {
	d.regions.Loggable.Remove(addr, addr+size)
}

// EnableLogging / DisableLogging implement §6.1's log toggle.
func (d *Dispatcher) EnableLogging()  { d.loggingEnabled = true }
func (d *Dispatcher) DisableLogging() { d.loggingEnabled = false }

// AddGlobalExclude implements §6.1's AddGlobalExclude event.
func (d *Dispatcher) AddGlobalExclude(addr, size uint64) {
	d.txs.AddGlobalExclude(addr, addr+size)
}

// SetClean implements §6.1's SetClean event.
func (d *Dispatcher) SetClean(addr, size uint64) {
	d.stores.SetClean(addr, addr+size)
}

// EmitLog implements §6.1's EmitLog pass-through marker.
func (d *Dispatcher) EmitLog(marker string) {
	if d.loggingEnabled {
		d.log.Marker(marker)
	}
}

// RegisterFile implements §6.1's RegisterFile event: fd-to-path resolution
// itself is out of scope (§1); path is supplied by the caller, who owns
// that resolution.
func (d *Dispatcher) RegisterFile(path string, addr, size, offset uint64) {
	if d.loggingEnabled {
		d.log.RegisterFile(path, addr, size, offset)
	}
}

// Report builds the §6.4 report from current state.
func (d *Dispatcher) Report() report.Report {
	return report.Build(d.buffers, d.stores.Dangling(), d.txs, d.cfg.ErrorSummary)
}

// WriteStats implements §6.1's WriteStats event: format and print the
// current report to w.
func (d *Dispatcher) WriteStats(w io.Writer) {
	fmt.Fprint(w, d.Report().String())
}

// Log returns the accumulated §6.2 outbound log stream so far.
func (d *Dispatcher) Log() string { return d.log.String() }

// Buffers exposes the diagnostic buffers for callers that want direct
// access (e.g. a report formatter outside this package).
func (d *Dispatcher) Buffers() *diag.Buffers { return d.buffers }

// Transactions exposes C5 for callers building their own report view.
func (d *Dispatcher) Transactions() *txn.Tracker { return d.txs }
