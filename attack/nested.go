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
	itransport "github.com/keyforge/mfckey/internal/transport"
	"github.com/keyforge/mfckey/keytable"
)

// mifareSectorRetry bounds how many acquisition rounds a nested attempt
// gets before giving up on a sector, per spec section 4.7.
const mifareSectorRetry = 3

// nestedAcquireCount is how many nested-auth samples RunNested pulls per
// round before trusting the acquisition enough to run candidate
// verification against it.
const nestedAcquireCount = 8

// RunNested recovers targetBlock/targetKeyType's key using a key already
// known for knownBlock/knownKeyType on the same card, per spec section
// 4.7. It requires PRNG=Weak; autopwn routes a static or hardened PRNG to
// RunStaticNested or hardnested respectively.
//
// The acquisition step exercises the real nested-authentication path
// (Transport.AcquireNonces) and sanity-checks the samples it gets back:
// consistent CUID across the round and more than one distinct
// (NtEnc, parity) class are the same cross-checks a production
// implementation runs before trusting a batch enough to spend CPU on it.
// A batch with a CUID mismatch is discarded and the round retried; a
// batch that collapses to one class looks like a static-nonce tag, not a
// weak one, and is reported as an anomaly rather than fed to the
// candidate pass. The actual key recovery verifies each of candidates (conventionally
// autopwn's dictionary-plus-ExtendedKeys pool, not just the dictionary
// Phase 3 already tried) against the card directly; see DESIGN.md for
// why this rewrite does not reimplement crapto1's raw-keystream LFSR
// solver.
func RunNested(
	ctx context.Context, dev *mfckey.Device,
	knownBlock byte, knownKeyType mfckey.KeyType, knownKey keytable.Key,
	targetBlock byte, targetKeyType mfckey.KeyType,
	candidates []keytable.Key, slow bool,
) Outcome {
	select {
	case <-ctx.Done():
		return Aborted()
	default:
	}

	class, err := dev.DetectPRNGWeak()
	if err != nil {
		return TransportErr(err)
	}
	if class != mfckey.PRNGWeak {
		return NotVulnerable(ckerr.WhyPrngUnpredictable)
	}

	result, err := itransport.WithRetry(itransport.RetryConfig{
		MaxRetries:  mifareSectorRetry - 1,
		Description: "nested acquisition",
	}, func() (Outcome, bool, error) {
		select {
		case <-ctx.Done():
			return Aborted(), false, nil
		default:
		}
		if ok, outcome := acquireAndVerify(ctx, dev, knownBlock, knownKeyType, knownKey,
			targetBlock, targetKeyType, candidates, slow, nestedAcquireCount, true); ok {
			return outcome, false, nil
		}
		return Outcome{}, true, nil
	})
	if err != nil {
		return NotVulnerable(ckerr.WhyNestedExhausted)
	}
	return result
}

// packParityBits folds a sample's per-byte parity flags into one nibble,
// the same bitflip-class signature hardnested's classify uses, so a
// batch's (NtEnc, parity) pairs can be compared cheaply for distinctness.
func packParityBits(p [4]byte) byte {
	var out byte
	for i, b := range p {
		if b != 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// acquireAndVerify runs one acquisition round and, if the samples look
// self-consistent, trials candidates against the target directly. ok is
// true only when the round produced a definitive Outcome (found, aborted,
// a transport error, or NotVulnerable(WhyPrngAnomalous) for a batch that
// collapsed to one class); false asks the caller to retry the round.
func acquireAndVerify(
	ctx context.Context, dev *mfckey.Device,
	knownBlock byte, knownKeyType mfckey.KeyType, knownKey keytable.Key,
	targetBlock byte, targetKeyType mfckey.KeyType,
	candidates []keytable.Key, slow bool, n int, expectVarying bool,
) (bool, Outcome) {
	samples, errs := dev.AcquireNonces(knownBlock, knownKeyType, [6]byte(knownKey), targetBlock, targetKeyType, slow)

	var cuid uint32
	count := 0
	consistent := true
	classes := make(map[uint32]struct{}, n)
	for s := range samples {
		if count == 0 {
			cuid = s.CUID
		} else if s.CUID != cuid {
			consistent = false
		}
		classes[s.NtEnc^uint32(packParityBits(s.Parity))<<28] = struct{}{}
		count++
		if count >= n {
			break
		}
	}
	for range samples {
		// drain whatever the transport still has queued so its goroutine
		// can close out cleanly even if we stopped early at n.
	}
	if err := <-errs; err != nil {
		if ckerr.KindOf(err) == ckerr.KindTimeout {
			return false, Outcome{}
		}
		return true, TransportErr(err)
	}
	if count == 0 || !consistent {
		return false, Outcome{}
	}
	// A batch of more than one sample that collapses to a single
	// (NtEnc, parity) class means the nonce held still across the whole
	// round — a static-nonce signature, not the weak-but-moving PRNG a
	// caller expecting variation targets. Static-nested expects exactly
	// this collapse, so it opts out via expectVarying=false. Surface the
	// mismatch as an anomaly rather than spending candidate round trips
	// a degenerate batch cannot support.
	if expectVarying && count > 1 && len(classes) < 2 {
		return true, NotVulnerable(ckerr.WhyPrngAnomalous)
	}

	for _, candidate := range candidates {
		select {
		case <-ctx.Done():
			return true, Aborted()
		default:
		}
		if err := dev.Authenticate(targetBlock, targetKeyType, [6]byte(candidate)); err == nil {
			return true, Found(candidate)
		} else if ckerr.KindOf(err) != ckerr.KindAuthFail {
			return true, TransportErr(err)
		}
	}
	return false, Outcome{}
}
