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
	"context"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/keytable"
)

// KeyBruteMaxUnknownBits caps how many key bits Brute will search, so a
// caller that accidentally passes an all-zero mask fails fast instead of
// spending 2^48 authentications.
const KeyBruteMaxUnknownBits = 24

// Brute recovers block/keyType's key when part of it is already known:
// mask has a 1 bit for every bit of partial that is fixed, 0 for every
// bit still to be searched. It exhaustively tries every value of the
// unknown bits against the card via Authenticate. Returns false,
// unchanged if more than KeyBruteMaxUnknownBits bits are unknown.
func Brute(
	ctx context.Context, dev *mfckey.Device, block byte, keyType mfckey.KeyType,
	partial keytable.Key, mask uint64,
) (keytable.Key, bool) {
	const keyBits = 48
	base := keyToUint48(partial)
	known := mask & (1<<keyBits - 1)
	unknown := ^known & (1<<keyBits - 1)

	var freeBits []uint
	for b := uint(0); b < keyBits; b++ {
		if unknown&(1<<b) != 0 {
			freeBits = append(freeBits, b)
		}
	}
	if len(freeBits) > KeyBruteMaxUnknownBits {
		return keytable.Key{}, false
	}

	total := uint64(1) << uint(len(freeBits))
	for v := uint64(0); v < total; v++ {
		select {
		case <-ctx.Done():
			return keytable.Key{}, false
		default:
		}

		candidate := base & known
		for i, b := range freeBits {
			if v&(1<<uint(i)) != 0 {
				candidate |= 1 << b
			}
		}
		key := uint48ToKey(candidate)
		if err := dev.Authenticate(block, keyType, [6]byte(key)); err == nil {
			return key, true
		}
	}
	return keytable.Key{}, false
}

func keyToUint48(k keytable.Key) uint64 {
	var v uint64
	for _, b := range k {
		v = v<<8 | uint64(b)
	}
	return v
}

func uint48ToKey(v uint64) keytable.Key {
	var k keytable.Key
	for i := 5; i >= 0; i-- {
		k[i] = byte(v)
		v >>= 8
	}
	return k
}
