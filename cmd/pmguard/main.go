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

// Command pmguard is a minimal wiring demo: it is not a CLI (no flag
// parsing, per spec.md's Non-goals) — it drives a canned sequence of
// events through a dispatch.Dispatcher the way a host's instrumentation
// hooks would, then prints the resulting report.
package main

import (
	"os"

	"github.com/pmguard/pmguard/config"
	"github.com/pmguard/pmguard/dispatch"
	"github.com/pmguard/pmguard/trace"
)

func main() {
	cfg := config.Defaults()
	cfg.CheckFlush = true
	cfg.TrackMultipleStores = true
	cfg.LogStores = true

	d := dispatch.New(cfg)

	const poolAddr = 0x7f0000000000
	const poolSize = 0x1000
	d.RegisterMapping(poolAddr, poolSize)
	d.AddLogRegion(poolAddr, poolSize)

	allocTrace := trace.Trace{Frames: []trace.Frame{{Name: "pool_alloc"}}}
	commitTrace := trace.Trace{Frames: []trace.Frame{{Name: "txn_commit"}}}

	dispatch.WithThread(1, func() {
		d.SbEnter()

		txID := uint64(1)
		d.BeginTx(&txID, commitTrace)
		if err := d.AddObj(txID, poolAddr, 64); err != nil {
			panic(err)
		}

		d.Store(poolAddr, 8, 0xDEADBEEF, allocTrace)
		d.Store(poolAddr+8, 8, 0x1, allocTrace)
		d.Flush(poolAddr, 16)
		d.Fence()
		d.Commit()

		if err := d.EndTx(&txID); err != nil {
			panic(err)
		}
	})

	// A store outside any transaction and outside the mapped pool: the
	// mapping filter drops it before it ever reaches C3/C5.
	d.Store(0xdeadbeef0000, 8, 0, trace.Trace{})

	d.WriteStats(os.Stdout)
	os.Stdout.WriteString(d.Log())
}
