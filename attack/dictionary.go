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

package attack

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/ckerr"
	"github.com/keyforge/mfckey/keytable"
	"github.com/keyforge/mfckey/profile"
)

// DefaultKeys is the built-in dictionary every recovery run merges the
// user's dictionary into, headed by the factory transport key.
var DefaultKeys = []keytable.Key{
	{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5},
	{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7},
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5},
	{0x4D, 0x3A, 0x99, 0xC3, 0x51, 0xDD},
	{0x1A, 0x98, 0x2C, 0x7E, 0x45, 0x9A},
}

// Warning reports a dictionary line that was skipped rather than
// treated as a fatal file error.
type Warning struct {
	Line int
	Text string
}

func (w Warning) String() string { return fmt.Sprintf("line %d: %s", w.Line, w.Text) }

// LoadDictionary reads one 12-hex-digit key per line from path. Blank
// lines and lines starting with '#' are comments; malformed lines are
// skipped and reported as warnings rather than failing the whole load.
// Duplicate keys are tolerated (left to the caller/dedup at use time).
func LoadDictionary(path string) ([]keytable.Key, []Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &ckerr.FileError{Path: path, Reason: ckerr.FileNotFound, Err: err}
		}
		return nil, nil, &ckerr.FileError{Path: path, Reason: ckerr.FileMalformed, Err: err}
	}
	defer f.Close()

	var keys []keytable.Key
	var warnings []Warning
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, err := keytable.ParseKey(line)
		if err != nil {
			warnings = append(warnings, Warning{Line: lineNo, Text: line})
			continue
		}
		keys = append(keys, k)
	}
	if err := scanner.Err(); err != nil {
		return keys, warnings, &ckerr.FileError{Path: path, Reason: ckerr.FileMalformed, Err: err}
	}
	return keys, warnings, nil
}

// MergeDictionary appends DefaultKeys after the user-supplied ones,
// keeping the user's priority order (tried first) intact.
func MergeDictionary(userKeys []keytable.Key) []keytable.Key {
	out := make([]keytable.Key, 0, len(userKeys)+len(DefaultKeys))
	out = append(out, userKeys...)
	out = append(out, DefaultKeys...)
	return out
}

// ExtendedKeys is a second, larger tier of known vendor and diversified
// keys (transit, access-control and building-management defaults seen in
// public MIFARE key corpora) that RunFastCheck never tries — it is
// reserved for the cryptanalytic attacks (darkside, nested, hardnested,
// static-nested), which otherwise would only ever re-verify the same
// keys the dictionary phase already ruled out for every sector. Keeping
// it separate from DefaultKeys bounds the fast bulk-check round trips to
// the small, high-probability set while still giving the slower
// per-sector attacks a wider, genuinely unexhausted net to search.
var ExtendedKeys = []keytable.Key{
	{0x71, 0x4C, 0x5C, 0x88, 0x6E, 0x97},
	{0x58, 0x7E, 0xE5, 0xF9, 0x35, 0x0F},
	{0xA6, 0x2D, 0xC6, 0xFB, 0x6A, 0x8F},
	{0x00, 0x01, 0x02, 0x03, 0x04, 0x05},
	{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
	{0x20, 0x31, 0x42, 0x53, 0x64, 0x75},
	{0xAB, 0xCD, 0xEF, 0x01, 0x23, 0x45},
	{0x4D, 0x78, 0x2C, 0xA5, 0x77, 0x08},
	{0xEE, 0x66, 0xBC, 0xD0, 0x1E, 0xB7},
	{0x5C, 0x59, 0x8C, 0x9C, 0x23, 0xCA},
	{0x8F, 0xD0, 0xA4, 0xF2, 0x56, 0xE9},
	{0x2A, 0x2C, 0x13, 0xCC, 0x24, 0x2A},
}

// MergeAttackCandidates builds the candidate pool the cryptanalytic
// attacks search: dictKeys (whatever the dictionary phase already tried
// for this card, including session-propagated keys) layered with
// ExtendedKeys, which the dictionary phase never consults. A key that
// survives past Phase 3 unfound can still be in this wider pool, so
// nested, hardnested and static-nested are not limited to repeating a
// dictionary check that has already failed.
func MergeAttackCandidates(dictKeys []keytable.Key) []keytable.Key {
	out := make([]keytable.Key, 0, len(dictKeys)+len(ExtendedKeys))
	out = append(out, dictKeys...)
	out = append(out, ExtendedKeys...)
	return out
}

// fastCheckChunkSize mirrors the device's bulk-check buffer capacity;
// each CheckKeysFast round trip tries at most this many keys.
const fastCheckChunkSize = 8

// RunFastCheck trials keys against every sector still unknown in table,
// chunked to fastCheckChunkSize per round trip, using the device's
// CheckKeysFast primitive (spec section 4.5). strategy selects whether
// the device walks depth-first (one sector exhausted before the next)
// or breadth-first (every sector tried once per key before advancing).
// Returns the count of newly-found keys; ctx cancellation stops between
// chunks, not mid-chunk.
func RunFastCheck(
	ctx context.Context, dev *mfckey.Device, table *keytable.Table,
	keys []keytable.Key, strategy mfckey.CheckStrategy,
) (int, error) {
	sectors := table.Sectors()
	found := 0

	for start := 0; start < len(keys); start += fastCheckChunkSize {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}

		end := start + fastCheckChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := make([][6]byte, end-start)
		for i, k := range keys[start:end] {
			chunk[i] = k
		}

		mask := make([]bool, sectors)
		any := false
		for s := 0; s < sectors; s++ {
			entry := table.Get(s)
			if !entry.Found(keytable.A) || !entry.Found(keytable.B) {
				mask[s] = true
				any = true
			}
		}
		if !any {
			break
		}

		result, err := dev.CheckKeysFast(mask, start == 0, end == len(keys), strategy, chunk)
		if err != nil {
			return found, err
		}
		for s := 0; s < sectors; s++ {
			if s < len(result.FoundA) && result.FoundA[s] && !table.Get(s).Found(keytable.A) {
				if setErr := table.Set(s, keytable.A, keytable.Key(result.KeysA[s]), keytable.SourceDictionary); setErr == nil {
					found++
				}
			}
			if s < len(result.FoundB) && result.FoundB[s] && !table.Get(s).Found(keytable.B) {
				if setErr := table.Set(s, keytable.B, keytable.Key(result.KeysB[s]), keytable.SourceDictionary); setErr == nil {
					found++
				}
			}
		}
	}
	return found, nil
}

// RunLegacyCheck is the non-fast per-sector authenticate loop the
// original tool's CmdHF14AMfChk fell back to before the device grew a
// bulk-check command, kept for autopwn's --legacy flag. It tries every
// key against every still-unknown sector/key-type with a plain
// Authenticate call per attempt, so it is far slower but needs nothing
// from the transport beyond Authenticate.
func RunLegacyCheck(
	ctx context.Context, dev *mfckey.Device, table *keytable.Table, prof profile.Profile, keys []keytable.Key,
) (int, error) {
	found := 0
	for s := 0; s < table.Sectors(); s++ {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}
		block := byte(prof.FirstBlockOf(s))
		for idx, keyType := range []struct {
			i keytable.KeyIndex
			t mfckey.KeyType
		}{{keytable.A, mfckey.KeyTypeA}, {keytable.B, mfckey.KeyTypeB}} {
			_ = idx
			if table.Get(s).Found(keyType.i) {
				continue
			}
			for _, k := range keys {
				if err := dev.Authenticate(block, keyType.t, k); err == nil {
					if table.Set(s, keyType.i, k, keytable.SourceDictionary) == nil {
						found++
					}
					break
				}
			}
		}
	}
	return found, nil
}
