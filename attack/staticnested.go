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
	"github.com/keyforge/mfckey/keytable"
)

// staticNestedAcquireCount is smaller than the weak-PRNG nested attack's:
// a nonce that never changes gains nothing from a larger batch, so two
// samples are taken.
const staticNestedAcquireCount = 2

// RunStaticNested is the nested attack's counterpart for tags whose nonce
// never changes (spec section 4.9): one acquisition round, one candidate
// pass, no retries — a constant nonce either matches straight away or the
// tag isn't vulnerable this way at all.
func RunStaticNested(
	ctx context.Context, dev *mfckey.Device,
	knownBlock byte, knownKeyType mfckey.KeyType, knownKey keytable.Key,
	targetBlock byte, targetKeyType mfckey.KeyType,
	candidates []keytable.Key,
) Outcome {
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
		return NotVulnerable(ckerr.WhyStaticMismatch)
	}

	ok, outcome := acquireAndVerify(ctx, dev, knownBlock, knownKeyType, knownKey,
		targetBlock, targetKeyType, candidates, false, staticNestedAcquireCount, false)
	if ok {
		return outcome
	}
	return NotVulnerable(ckerr.WhyStaticMismatch)
}
