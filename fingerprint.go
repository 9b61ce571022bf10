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

package mfckey

import "github.com/google/uuid"

// fingerprintNamespace seeds the deterministic UUIDs CardFingerprint mints.
// It has no meaning beyond being fixed across the process, so the same
// card identity always folds to the same fingerprint.
var fingerprintNamespace = uuid.MustParse("b69fa4c0-6e0b-4b8a-9f2e-9d2f6e9d8a11")

// CardFingerprint identifies a physical card across Select calls: UID
// (4, 7 or 10 bytes depending on cascade level) plus ATQA and SAK, folded
// into a stable UUID. Raw UID bytes aren't a safe map key on their own —
// length varies by cascade level and some tags hand out a fresh random UID
// every poll — so callers that need to key a cache on "this card" use the
// fingerprint instead.
type CardFingerprint struct {
	id uuid.UUID
}

// NewCardFingerprint derives card's fingerprint.
func NewCardFingerprint(card CardID) CardFingerprint {
	data := make([]byte, 0, len(card.UID)+3)
	data = append(data, card.UID...)
	data = append(data, card.ATQA[0], card.ATQA[1], card.SAK)
	return CardFingerprint{id: uuid.NewSHA1(fingerprintNamespace, data)}
}

// String returns the fingerprint's canonical UUID text form, suitable as a
// dump filename stem.
func (f CardFingerprint) String() string {
	return f.id.String()
}
