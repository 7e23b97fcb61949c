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

// Package handle mints opaque identifiers for things the core treats as
// comparable handles it does not own the contents of, such as a captured
// stack trace (§3.1 "context").
package handle

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Handle is an opaque, comparable identifier.
type Handle uuid.UUID

// Zero is the empty handle, carried by any trace.Trace not built with
// trace.New.
var Zero Handle

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

var counter uint64 = uint64(time.Now().UnixNano())

// New returns a fresh handle without relying on crypto/rand, avoiding the
// startup stall crypto/rand can incur on low-entropy systems — the guest
// program's instrumentation hooks fire long before the OS entropy pool is
// necessarily primed.
func New() Handle {
	ctr := atomic.AddUint64(&counter, 1)
	now := uint64(time.Now().UnixNano())
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], ctr)
	binary.LittleEndian.PutUint64(b[8:16], ctr^now^(now<<17))
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return Handle(b)
}
