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

// Package diag implements the bounded warning buffers of C2 (§4.2, §7): a
// fixed-capacity append-only log per diagnostic category, with a
// caller-installed callback that fires once and for all on overflow.
package diag

import (
	"fmt"
	"os"

	"github.com/dc0d/onexit"
)

// Category names the five bounded buffers of §3.6/§4.2.
type Category int

const (
	MultipleOverwrite Category = iota
	RedundantFlush
	SuperfluousFlush
	OutOfTxStore
	CrossTxOverlap
)

func (c Category) String() string {
	switch c {
	case MultipleOverwrite:
		return "MultipleOverwrite"
	case RedundantFlush:
		return "RedundantFlush"
	case SuperfluousFlush:
		return "SuperfluousFlush"
	case OutOfTxStore:
		return "OutOfTxStore"
	case CrossTxOverlap:
		return "CrossTxOverlap"
	default:
		return "Unknown"
	}
}

// Record is one accumulated diagnostic (§7). Addr/Size/State describe the
// store or region involved; Context is the opaque stack-trace handle the
// host knows how to symbolicate; Detail carries category-specific text
// (e.g. the other transaction's id for CrossTxOverlap).
type Record struct {
	Category Category
	Addr     uint64
	Size     uint64
	State    string
	Context  any
	Detail   string
}

// defaultCapacity returns the §4.2 capacity for a category.
func defaultCapacity(c Category) int {
	if c == CrossTxOverlap {
		return 1000
	}
	return 10000
}

// Buffer is one bounded, append-only diagnostic log. It is not safe for
// concurrent use — §5 guarantees the whole core runs single-threaded,
// run-to-completion per event, so Buffer carries no lock of its own.
type Buffer struct {
	category Category
	cap      int
	records  []Record
	onOverflow func(Category, []Record)
}

// NewBuffer returns an empty buffer for category c at its §4.2 capacity.
// onOverflow is invoked on every Add made once the buffer already holds cap
// records (the (cap+1)th and each later one), after that record is
// appended; it receives all accumulated records including the triggering
// one. A nil onOverflow installs DefaultOverflow.
func NewBuffer(c Category, onOverflow func(Category, []Record)) *Buffer {
	if onOverflow == nil {
		onOverflow = DefaultOverflow
	}
	return &Buffer{category: c, cap: defaultCapacity(c), onOverflow: onOverflow}
}

// Add appends rec, triggering the overflow callback if the buffer is full.
// The record is still appended beforehand so the callback sees the full
// accumulated set (mirroring the original's "print what we have, then die").
func (b *Buffer) Add(rec Record) {
	rec.Category = b.category
	if len(b.records) >= b.cap {
		b.records = append(b.records, rec)
		b.onOverflow(b.category, b.records)
		return
	}
	b.records = append(b.records, rec)
}

// Category returns the diagnostic category this buffer was created for.
func (b *Buffer) Category() Category { return b.category }

// Len returns the number of accumulated records.
func (b *Buffer) Len() int { return len(b.records) }

// Records returns the accumulated records, in insertion order. The slice is
// owned by the buffer; callers must not mutate it.
func (b *Buffer) Records() []Record { return b.records }

// DefaultOverflow is the §4.2/§7 "operational failure" behavior: print the
// accumulated records to stderr and terminate the process with a non-zero
// exit code. It is not itself registered with onexit; it terminates through
// onexit.Exit(2), so functions registered with onexit.Register (such as the
// dispatcher's report printer) run before the process exits.
func DefaultOverflow(c Category, records []Record) {
	fmt.Fprintf(os.Stderr, "pmguard: %s buffer exceeded capacity (%d records accumulated)\n", c, len(records))
	for i, r := range records {
		fmt.Fprintf(os.Stderr, "  [%d] addr=%#x size=%#x state=%s %s\n", i, r.Addr, r.Size, r.State, r.Detail)
	}
	onexit.Exit(2)
}

// Buffers bundles the five C2 instances a dispatcher owns (§3.6).
type Buffers struct {
	Overwrite      *Buffer
	RedundantFlush *Buffer
	Superfluous    *Buffer
	OutOfTx        *Buffer
	CrossTx        *Buffer
}

// NewBuffers constructs the five bounded buffers, all sharing onOverflow
// (nil installs DefaultOverflow on each).
func NewBuffers(onOverflow func(Category, []Record)) *Buffers {
	return &Buffers{
		Overwrite:      NewBuffer(MultipleOverwrite, onOverflow),
		RedundantFlush: NewBuffer(RedundantFlush, onOverflow),
		Superfluous:    NewBuffer(SuperfluousFlush, onOverflow),
		OutOfTx:        NewBuffer(OutOfTxStore, onOverflow),
		CrossTx:        NewBuffer(CrossTxOverlap, onOverflow),
	}
}

// All returns the five buffers in a fixed order, for report generation
// (§6.4) and aggregate counting (§6.3 error_summary).
func (b *Buffers) All() []*Buffer {
	return []*Buffer{b.Overwrite, b.RedundantFlush, b.Superfluous, b.OutOfTx, b.CrossTx}
}

// Total is the aggregate diagnostic count across all five buffers, used by
// the error_summary report option (§6.3).
func (b *Buffers) Total() int {
	n := 0
	for _, buf := range b.All() {
		n += buf.Len()
	}
	return n
}
