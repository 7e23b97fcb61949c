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

// Package config holds the §6.3 configuration knobs. There is no flag or
// file parsing here (out of scope, §1) — callers fill Options directly, the
// way storage.SettingsT is filled by its embedding host rather than parsed
// from argv.
package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// Options is every §6.3 knob, with the documented defaults.
type Options struct {
	TrackMultipleStores bool
	IndiffWindow        uint64
	LogStores           bool
	PrintSummary        bool
	CheckFlush          bool
	ForceFlushAlign     bool
	TransactionsOnly    bool
	AutomaticISARec     bool
	ErrorSummary        bool
	WeakClflush         bool
}

// Defaults returns the §6.3 default configuration.
func Defaults() Options {
	return Options{
		TrackMultipleStores: false,
		IndiffWindow:        0,
		LogStores:           false,
		PrintSummary:        true,
		CheckFlush:          false,
		ForceFlushAlign:     false,
		TransactionsOnly:    false,
		AutomaticISARec:     true,
		ErrorSummary:        true,
		WeakClflush:         false,
	}
}

// Get returns the named option's current value, panicking on an unknown
// name (mirroring storage.ChangeSettings's behavior for its by-name
// accessors).
func (o Options) Get(name string) any {
	switch name {
	case "TrackMultipleStores":
		return o.TrackMultipleStores
	case "IndiffWindow":
		return o.IndiffWindow
	case "LogStores":
		return o.LogStores
	case "PrintSummary":
		return o.PrintSummary
	case "CheckFlush":
		return o.CheckFlush
	case "ForceFlushAlign":
		return o.ForceFlushAlign
	case "TransactionsOnly":
		return o.TransactionsOnly
	case "AutomaticISARec":
		return o.AutomaticISARec
	case "ErrorSummary":
		return o.ErrorSummary
	case "WeakClflush":
		return o.WeakClflush
	default:
		panic("unknown setting: " + name)
	}
}

// Set assigns the named option in place, panicking on an unknown name or a
// value of the wrong type.
func (o *Options) Set(name string, value any) {
	switch name {
	case "TrackMultipleStores":
		o.TrackMultipleStores = value.(bool)
	case "IndiffWindow":
		o.IndiffWindow = value.(uint64)
	case "LogStores":
		o.LogStores = value.(bool)
	case "PrintSummary":
		o.PrintSummary = value.(bool)
	case "CheckFlush":
		o.CheckFlush = value.(bool)
	case "ForceFlushAlign":
		o.ForceFlushAlign = value.(bool)
	case "TransactionsOnly":
		o.TransactionsOnly = value.(bool)
	case "AutomaticISARec":
		o.AutomaticISARec = value.(bool)
	case "ErrorSummary":
		o.ErrorSummary = value.(bool)
	case "WeakClflush":
		o.WeakClflush = value.(bool)
	default:
		panic("unknown setting: " + name)
	}
}

// DefaultFlushAlignSize is used when /proc/cpuinfo is unavailable or does
// not carry a "clflush size" field (§4.3.3).
const DefaultFlushAlignSize = 64

// DetectFlushAlignSize reads the cache-line size pmemcheck aligns flushes
// to from /proc/cpuinfo's "clflush size" field (§4.3.3), falling back to
// DefaultFlushAlignSize on any non-Linux host or parse failure.
func DetectFlushAlignSize() uint64 {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return DefaultFlushAlignSize
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, val, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "clflush size" {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(val), 10, 64)
		if err != nil || n == 0 {
			return DefaultFlushAlignSize
		}
		return n
	}
	return DefaultFlushAlignSize
}
