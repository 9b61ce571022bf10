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

package autopwn

import (
	"sync"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/keytable"
)

// session is the process-wide reuse-propagation cache (spec section 4.5):
// every key Run ever recovers for a card is kept under that card's
// fingerprint, so a second Run against the same physical card — a retry
// after a partial result, or a follow-up command invocation — starts
// known-good instead of falling all the way back to the dictionary.
var session sync.Map // mfckey.CardFingerprint -> []keytable.Key

func sessionKeysFor(fp mfckey.CardFingerprint) []keytable.Key {
	v, ok := session.Load(fp)
	if !ok {
		return nil
	}
	return v.([]keytable.Key)
}

func sessionRemember(fp mfckey.CardFingerprint, key keytable.Key) {
	for {
		existing, _ := session.LoadOrStore(fp, []keytable.Key{key})
		keys := existing.([]keytable.Key)
		for _, k := range keys {
			if k == key {
				return
			}
		}
		grown := append(append([]keytable.Key{}, keys...), key)
		if session.CompareAndSwap(fp, existing, grown) {
			return
		}
	}
}
