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

// Package report formats the §6.4 report: per-category diagnostic totals
// followed by a numbered listing, plus the DanglingDirty stores still
// outstanding at shutdown.
package report

import (
	"fmt"
	"strings"

	units "github.com/docker/go-units"

	"github.com/pmguard/pmguard/diag"
	"github.com/pmguard/pmguard/store"
	"github.com/pmguard/pmguard/trace"
	"github.com/pmguard/pmguard/txn"
)

// Entry is one numbered line of the report body.
type Entry struct {
	Category diag.Category
	Addr     uint64
	Size     uint64
	State    string
	Context  any
	Detail   string
}

// Report is the full §6.4 structure: per-category totals, the numbered
// entry listing, and (when error_summary is on) the aggregate count.
type Report struct {
	Totals       map[diag.Category]int
	Dangling     int
	Entries      []Entry
	ActiveTx     int
	ErrorSummary bool
	total        int
}

// Build assembles a Report from the current state of C2's buffers, C3's
// dangling records, and C5's active transaction count.
func Build(buffers *diag.Buffers, dangling []store.Record, txs *txn.Tracker, errorSummary bool) Report {
	r := Report{
		Totals:       make(map[diag.Category]int),
		ErrorSummary: errorSummary,
	}
	if txs != nil {
		r.ActiveTx = txs.ActiveCount()
	}

	for _, buf := range buffers.All() {
		records := buf.Records()
		r.Totals[buf.Category()] = len(records)
		for _, rec := range records {
			r.Entries = append(r.Entries, Entry{
				Category: rec.Category,
				Addr:     rec.Addr,
				Size:     rec.Size,
				State:    rec.State,
				Context:  rec.Context,
				Detail:   rec.Detail,
			})
		}
	}

	r.Dangling = len(dangling)
	for _, rec := range dangling {
		r.Entries = append(r.Entries, Entry{
			Category: danglingDirtyCategory,
			Addr:     rec.Addr,
			Size:     rec.End - rec.Addr,
			State:    rec.State.String(),
			Context:  rec.Context,
		})
	}

	r.total = buffers.Total() + r.Dangling
	return r
}

// danglingDirtyCategory is a synthetic sixth category (§7's DanglingDirty)
// that diag.Category does not enumerate, since it is derived from C3's
// state directly rather than accumulated in a C2 buffer.
const danglingDirtyCategory diag.Category = -1

func categoryLabel(c diag.Category) string {
	if c == danglingDirtyCategory {
		return "DanglingDirty"
	}
	return c.String()
}

// String renders the report the way §6.4 describes it: per-category
// totals, then a numbered list of (address, size, state, stack trace).
func (r Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "pmguard report: %d active transaction(s)\n", r.ActiveTx)
	for _, c := range []diag.Category{
		diag.MultipleOverwrite, diag.RedundantFlush, diag.SuperfluousFlush,
		diag.OutOfTxStore, diag.CrossTxOverlap,
	} {
		fmt.Fprintf(&b, "  %-16s %d\n", categoryLabel(c), r.Totals[c])
	}
	fmt.Fprintf(&b, "  %-16s %d\n", "DanglingDirty", r.Dangling)

	for i, e := range r.Entries {
		fmt.Fprintf(&b, "%4d. [%s] addr=%#x size=%s state=%s%s\n",
			i+1, categoryLabel(e.Category), e.Addr, units.BytesSize(float64(e.Size)), e.State, detailSuffix(e.Detail))
		if t, ok := e.Context.(trace.Trace); ok {
			b.WriteString(formatTrace(t))
		}
	}

	if r.ErrorSummary {
		fmt.Fprintf(&b, "%d total diagnostic(s)\n", r.total)
	}
	return b.String()
}

func detailSuffix(detail string) string {
	if detail == "" {
		return ""
	}
	return " (" + detail + ")"
}

// formatTrace defers to the host's symbolication service: this package
// treats a trace.Trace's frames as opaque beyond their PC/Name, printing
// whatever the host already resolved into Frame.Name (§6.4's "invoking the
// host's symbolication service").
func formatTrace(t trace.Trace) string {
	if len(t.Frames) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range t.Frames {
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("%#x", f.PC)
		}
		fmt.Fprintf(&b, "        at %s\n", name)
	}
	return b.String()
}
