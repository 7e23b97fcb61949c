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

// Package trace models the captured stack traces attached to stores and
// transactions (§3.1, §3.3). The host owns symbolication; the core only
// ever compares traces for the merge relaxation of §4.3.4.
package trace

import (
	"strings"

	"github.com/pmguard/pmguard/handle"
)

// Frame is one call-stack entry. Name is used for the bulk-memory
// relaxation below and is what the report prints; PC is the opaque
// comparison key.
type Frame struct {
	PC   uintptr
	Name string
}

// Trace is a captured stack trace, top frame first.
type Trace struct {
	Handle handle.Handle
	Frames []Frame
}

// New wraps a frame slice in a freshly minted handle.
func New(frames []Frame) Trace {
	return Trace{Handle: handle.New(), Frames: frames}
}

func isBulkMemoryFrame(f Frame) bool {
	return strings.Contains(f.Name, "memcpy") || strings.Contains(f.Name, "memset")
}

// Equal implements the merge-equality test of §4.3.4: same depth and same
// frame pointers at every level, except that the top frame is ignored when
// BOTH traces' top frame belongs to a bulk-memory primitive (a memcpy/memset
// implementation is itself not meaningful call-site information).
func Equal(a, b Trace) bool {
	af, bf := a.Frames, b.Frames
	if len(af) != len(bf) {
		return false
	}
	if len(af) > 0 && isBulkMemoryFrame(af[0]) && isBulkMemoryFrame(bf[0]) {
		af, bf = af[1:], bf[1:]
	}
	if len(af) != len(bf) {
		return false
	}
	for i := range af {
		if af[i].PC != bf[i].PC {
			return false
		}
	}
	return true
}
