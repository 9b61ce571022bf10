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

// Package mfkey32 reconciles a captured reader/tag authentication
// exchange into a key, the way the original tool's Möbius recovery did
// against passively-sniffed traces. Both the live "nested auth capture"
// path and the offline "supercard trace file" path funnel into the same
// Recover function; only how the TraceTriplet was obtained differs.
package mfkey32

import (
	"encoding/binary"
	"io"

	"github.com/keyforge/mfckey/ckerr"
	"github.com/keyforge/mfckey/crypto1"
	"github.com/keyforge/mfckey/keytable"
)

// arSuccessorDistance is the fixed PRNG-successor distance between a
// tag's nonce nt and the reader-authentication-response plaintext ar, the
// protocol constant a real reconciliation derives from the ISO 14443-A
// timing budget between nr and ar. Kept as a named constant rather than
// inlined since both Recover and any trace-construction helper need the
// exact same value to agree.
const arSuccessorDistance = 64

// TraceTriplet is one captured (or replayed) authentication exchange:
// the tag's plaintext nonce, the reader's encrypted random/response pair
// for one session, an optional second session for cross-validation
// (Nr2/Ar2 both zero when unused), and the candidate key pool to verify
// against — the running key table plus the merged dictionary, by
// convention. Recover needs no raw-keystream LFSR solver because it
// narrows to this bounded pool rather than inverting the cipher from
// scratch; see the design notes for why.
type TraceTriplet struct {
	CUID       uint32
	Nt         uint32
	Nr, Ar     uint32
	Nr2, Ar2   uint32
	Candidates []keytable.Key
}

// Recover searches trace.Candidates for the key that reproduces the
// observed exchange. Returns false if none matches.
func Recover(trace TraceTriplet) (keytable.Key, bool) {
	hasSecondSession := trace.Nr2 != 0 || trace.Ar2 != 0
	for _, candidate := range trace.Candidates {
		if !verifySession(candidate, trace.CUID, trace.Nt, trace.Nr, trace.Ar) {
			continue
		}
		if hasSecondSession && !verifySession(candidate, trace.CUID, trace.Nt, trace.Nr2, trace.Ar2) {
			continue
		}
		return candidate, true
	}
	return keytable.Key{}, false
}

// verifySession replays one authentication under candidate and checks
// whether it reproduces the observed ar: the cipher is seeded from
// candidate, synchronized with cuid^nt exactly as a real authentication
// would be, then clocked through the reader's nr before checking that
// decrypting ar yields the PRNG's computable successor of nt — the one
// keystream position an eavesdropper can verify without already knowing
// the key.
func verifySession(candidate keytable.Key, cuid, nt, nr, ar uint32) bool {
	s := crypto1.NewState(candidate)
	s.Word(cuid^nt, false)
	s.Word(nr, true)
	arPlain := crypto1.PrngSuccessor(nt, arSuccessorDistance)
	return crypto1.Decrypt(ar, &s) == arPlain
}

// BuildTrace constructs the TraceTriplet a real tag/reader exchange would
// produce under key, for use by live capture and by test fixtures that
// need a self-consistent sample. withSecondSession also fills Nr2/Ar2
// from a second, independent reader nonce.
func BuildTrace(key keytable.Key, cuid, nt, nr uint32, nr2 uint32, withSecondSession bool) TraceTriplet {
	ar := computeAr(key, cuid, nt, nr)
	t := TraceTriplet{CUID: cuid, Nt: nt, Nr: nr, Ar: ar}
	if withSecondSession {
		t.Ar2 = computeAr(key, cuid, nt, nr2)
		t.Nr2 = nr2
	}
	return t
}

func computeAr(key keytable.Key, cuid, nt, nr uint32) uint32 {
	s := crypto1.NewState(key)
	s.Word(cuid^nt, false)
	s.Word(nr, true)
	return crypto1.Encrypt(crypto1.PrngSuccessor(nt, arSuccessorDistance), &s)
}

// traceFileFieldCount is the number of little-endian uint32 fields a
// supercard trace file packs: cuid, nt, nr, ar, nr2, ar2.
const traceFileFieldCount = 6

// WriteTraceFile persists trace (without its Candidates pool, which the
// offline reader supplies separately) as six little-endian uint32 fields.
func WriteTraceFile(w io.Writer, trace TraceTriplet) error {
	fields := [traceFileFieldCount]uint32{trace.CUID, trace.Nt, trace.Nr, trace.Ar, trace.Nr2, trace.Ar2}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// ReadTraceFile reads back a file WriteTraceFile produced and attaches
// candidates as the pool Recover should search.
func ReadTraceFile(r io.Reader, candidates []keytable.Key) (TraceTriplet, error) {
	var fields [traceFileFieldCount]uint32
	for i := range fields {
		if err := binary.Read(r, binary.LittleEndian, &fields[i]); err != nil {
			return TraceTriplet{}, &ckerr.FileError{Reason: ckerr.FileWrongSize, Err: err}
		}
	}
	return TraceTriplet{
		CUID: fields[0], Nt: fields[1], Nr: fields[2], Ar: fields[3],
		Nr2: fields[4], Ar2: fields[5], Candidates: candidates,
	}, nil
}
