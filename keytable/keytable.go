// mfckey
// Copyright (c) 2026 The mfckey Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of mfckey.
//
// mfckey is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// mfckey is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with mfckey; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package keytable holds the per-sector recovered-key state that every
// attack reads from and writes to: package C4 of the engine spec. The
// table is exclusively owned by the orchestrator and mutably borrowed by
// one attack at a time (spec section 3); this package itself does no
// locking — callers serialize access.
package keytable

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Key is a 48-bit MIFARE key.
type Key [6]byte

// Unknown is the sentinel key value paired with found=false.
var Unknown = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// ParseKey parses a 12-hex-digit key, e.g. "ffffffffffff".
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("invalid key %q: %w", s, err)
	}
	if len(raw) != 6 {
		return Key{}, fmt.Errorf("invalid key %q: want 6 bytes, got %d", s, len(raw))
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}

// Source records which attack produced a recovered key, for auditability
// (the provenance letters printed alongside the key table).
type Source int

const (
	SourceNone Source = iota
	SourceUser
	SourceDictionary
	SourceDarkside
	SourceReused
	SourceNested
	SourceHardnested
	SourceStaticNested
	SourceKeyARead
)

// Letter renders the source the way the printed key table does.
func (s Source) Letter() byte {
	switch s {
	case SourceUser:
		return 'U'
	case SourceDictionary:
		return 'D'
	case SourceDarkside:
		return 'S'
	case SourceReused:
		return 'R'
	case SourceNested:
		return 'N'
	case SourceHardnested:
		return 'H'
	case SourceStaticNested:
		return 'C'
	case SourceKeyARead:
		return 'A'
	default:
		return '?'
	}
}

// KeyIndex selects Key A or Key B within a SectorEntry.
type KeyIndex int

const (
	A KeyIndex = 0
	B KeyIndex = 1
)

// SectorEntry is the recovery state of one sector's two keys.
type SectorEntry struct {
	keys       [2]Key
	found      [2]bool
	provenance [2]Source
}

// Key returns the recorded key for idx. Only meaningful when Found(idx).
func (e SectorEntry) Key(idx KeyIndex) Key { return e.keys[idx] }

// Found reports whether idx has been recovered.
func (e SectorEntry) Found(idx KeyIndex) bool { return e.found[idx] }

// Provenance reports which attack recovered idx, or SourceNone.
func (e SectorEntry) Provenance(idx KeyIndex) Source { return e.provenance[idx] }

// Table is the per-sector key recovery state for one card, length
// profile.Sectors().
type Table struct {
	entries []SectorEntry
}

// New creates a table with n sectors, all keys unknown.
func New(n int) *Table {
	return &Table{entries: make([]SectorEntry, n)}
}

// Sectors returns the number of sectors in the table.
func (t *Table) Sectors() int { return len(t.entries) }

// Get returns a copy of sector s's entry.
func (t *Table) Get(sector int) SectorEntry {
	return t.entries[sector]
}

// Set records key for sector/idx with the given provenance. Set is
// monotonic (spec section 4.4 and testable property 5): once found[idx]
// is true, a later Set for the same sector/idx must agree on the key
// value; Set returns an error rather than silently overwrite a
// conflicting key, and never clears found back to false.
func (t *Table) Set(sector int, idx KeyIndex, key Key, source Source) error {
	e := &t.entries[sector]
	if e.found[idx] && e.keys[idx] != key {
		return fmt.Errorf("keytable: sector %d key %v already found as %s, refusing to overwrite with %s",
			sector, idx, e.keys[idx], key)
	}
	e.keys[idx] = key
	e.found[idx] = true
	e.provenance[idx] = source
	return nil
}

// CountFound returns how many of the table's 2*Sectors() keys are known.
func (t *Table) CountFound() int {
	n := 0
	for _, e := range t.entries {
		if e.found[A] {
			n++
		}
		if e.found[B] {
			n++
		}
	}
	return n
}

// AnyUnknown reports whether at least one key remains unrecovered.
func (t *Table) AnyUnknown() bool {
	return t.CountFound() < 2*len(t.entries)
}

// UnknownSectors returns the sectors with at least one unrecovered key,
// in ascending order.
func (t *Table) UnknownSectors() []int {
	var out []int
	for s, e := range t.entries {
		if !e.found[A] || !e.found[B] {
			out = append(out, s)
		}
	}
	return out
}

// Render prints a plain-text table with provenance letters, the way the
// engine's CLI summarizes a run. Rows are numbered by table index; single
// does not change the output, so a one-sector table always prints its row
// as sector 0.
func (t *Table) Render(single bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-4s | %-14s | %-14s\n", "sec", "key A", "key B")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 38))
	for s, e := range t.entries {
		idx := s
		_ = single // not consulted: rows carry the table index
		fmt.Fprintf(&b, "%-4d | %-14s | %-14s\n", idx, renderCell(e, A), renderCell(e, B))
	}
	return b.String()
}

func renderCell(e SectorEntry, idx KeyIndex) string {
	if !e.Found(idx) {
		return "??????????? ?"
	}
	return fmt.Sprintf("%s %c", e.Key(idx), e.Provenance(idx).Letter())
}
