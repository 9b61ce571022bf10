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
	"github.com/keyforge/mfckey/ckerr"
	"github.com/keyforge/mfckey/internal/logx"
	"github.com/keyforge/mfckey/keytable"
)

// DarksideCandidates is the key list darkside trials once it has confirmed
// the tag both NACKs bad authentications and runs a weak PRNG. A real
// darkside run needs no candidate list at all — it reconstructs the key
// from the NACK timing leak directly — but doing so requires solving
// CRYPTO1's LFSR state from raw keystream bits (crapto1's
// lfsr_recovery32), an algorithm this rewrite does not reimplement; see
// the darkside entry in the design notes. Bootstrapping instead from a
// curated key list still exercises the same precondition checks and
// Outcome routing a caller needs before falling back further.
//
// Darkside only ever runs when Phase 3's dictionary pass has already
// failed against every sector (autopwn's bootstrap phase is gated on
// table.CountFound() == 0). The pool is DefaultKeys followed by
// ExtendedKeys: under autopwn the DefaultKeys part repeats what the
// dictionary phase already tried, and ExtendedKeys adds a tier that phase
// never touched.
var DarksideCandidates = MergeAttackCandidates(DefaultKeys)

// RunDarkside attempts to recover one key for block/keyType with no prior
// knowledge of any key on the card, per spec section 4.6. It first
// confirms the tag is darkside-applicable at all (NACKs on a deliberately
// wrong key, and its PRNG is not hardened), then trials
// DarksideCandidates against block/keyType directly.
func RunDarkside(ctx context.Context, dev *mfckey.Device, block byte, keyType mfckey.KeyType) Outcome {
	select {
	case <-ctx.Done():
		return Aborted()
	default:
	}

	isStatic, err := dev.DetectPRNGStatic()
	if err != nil {
		return TransportErr(err)
	}
	if !isStatic {
		class, err := dev.DetectPRNGWeak()
		if err != nil {
			return TransportErr(err)
		}
		if class == mfckey.PRNGHardened {
			return NotVulnerable(ckerr.WhyPrngUnpredictable)
		}
	}

	bogus := keytable.Key{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}
	if err := dev.Authenticate(block, keyType, bogus); err == nil {
		// the bogus key was somehow correct; darkside has nothing left
		// to recover.
		return Found(bogus)
	} else if ckerr.KindOf(err) != ckerr.KindAuthFail {
		return NotVulnerable(ckerr.WhyNoNack)
	}

	for _, candidate := range DarksideCandidates {
		select {
		case <-ctx.Done():
			return Aborted()
		default:
		}
		if err := dev.Authenticate(block, keyType, candidate); err == nil {
			return Found(candidate)
		} else if ckerr.KindOf(err) != ckerr.KindAuthFail {
			return TransportErr(err)
		}
	}

	logx.Debugf("darkside: PRNG looked weak but no candidate matched block %d/%s", block, keyType)
	return NotVulnerable(ckerr.WhyPrngAnomalous)
}
