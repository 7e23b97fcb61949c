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

// Package logfmt implements the §6.2 outbound log stream: a single
// process-global byte stream that opens with "START", closes with
// "STOP\n", and separates pipe-delimited records of the form TAG or
// TAG;arg1;arg2;....
package logfmt

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Emitter accumulates a §6.2 log stream. The zero value is an empty,
// ready-to-use emitter; NewEmitter returns a pointer to one.
type Emitter struct {
	mu      sync.Mutex
	records []string
}

// NewEmitter returns a ready Emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

func (e *Emitter) push(record string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, record)
}

// Store appends a STORE;0xADDR;0xVALUE;0xSIZE record.
func (e *Emitter) Store(addr, value, size uint64) {
	e.push(fmt.Sprintf("STORE;0x%x;0x%x;0x%x", addr, value, size))
}

// Flush appends a FLUSH;0xADDR;0xSIZE record.
func (e *Emitter) Flush(addr, size uint64) {
	e.push(fmt.Sprintf("FLUSH;0x%x;0x%x", addr, size))
}

// Fence appends a bare FENCE record.
func (e *Emitter) Fence() { e.push("FENCE") }

// Commit appends a bare COMMIT record.
func (e *Emitter) Commit() { e.push("COMMIT") }

// RegisterFile appends a REGISTER_FILE;PATH;0xADDR;0xSIZE;0xOFFSET record.
// path may be a resolver-supplied sentinel when the fd could not be
// resolved — this package's job is only to emit the record, never to
// validate the path.
func (e *Emitter) RegisterFile(path string, addr, size, offset uint64) {
	e.push(fmt.Sprintf("REGISTER_FILE;%s;0x%x;0x%x;0x%x", path, addr, size, offset))
}

// Marker appends an arbitrary single-token marker, as emitted by EmitLog.
func (e *Emitter) Marker(tag string) { e.push(tag) }

// String renders the full START ... | ... STOP\n stream accumulated so
// far.
func (e *Emitter) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var b strings.Builder
	b.WriteString("START")
	for _, r := range e.records {
		b.WriteString("|")
		b.WriteString(r)
	}
	b.WriteString("|STOP\n")
	return b.String()
}

// Record is one parsed log entry: Tag plus its raw args, as produced by
// Parse.
type Record struct {
	Tag  string
	Args []string
}

// Parse recognizes a full START ... STOP\n stream built with the packrat
// grammar in grammar.go, returning each pipe-delimited record in order.
// It is a round-trip / replay helper, not required for emission.
func Parse(stream string) ([]Record, error) {
	return parseStream(stream)
}

// ParseAddr is a convenience for record args shaped like "0x1a2b".
func ParseAddr(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	return strconv.ParseUint(s, 16, 64)
}
