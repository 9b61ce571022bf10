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

package hardnested

import (
	"context"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/attack"
	"github.com/keyforge/mfckey/ckerr"
	"github.com/keyforge/mfckey/internal/logx"
	"github.com/keyforge/mfckey/keytable"
)

// AcquireThreshold is the default sample count Acquire collects before
// handing control back to Run's candidate pass — the point at which the
// real attack's state-set intersection would have narrowed enough to
// brute-force (spec section 4.8 step 3).
const AcquireThreshold = 64

// Acquire pulls up to threshold nonce samples for targetBlock/targetKeyType,
// authenticated via knownBlock/knownKeyType/knownKey, optionally inserting
// the slow-tag delay the transport exposes. It returns the acquired CUID
// and records ready for classification or for WriteNoncesFile.
func Acquire(
	ctx context.Context, dev *mfckey.Device,
	knownBlock byte, knownKeyType mfckey.KeyType, knownKey keytable.Key,
	targetBlock byte, targetKeyType mfckey.KeyType, slow bool, threshold int,
) (uint32, []NonceRecord, error) {
	if threshold <= 0 {
		threshold = AcquireThreshold
	}
	samples, errs := dev.AcquireNonces(knownBlock, knownKeyType, [6]byte(knownKey), targetBlock, targetKeyType, slow)

	var cuid uint32
	records := make([]NonceRecord, 0, threshold)
	for s := range samples {
		select {
		case <-ctx.Done():
			return cuid, records, ctx.Err()
		default:
		}
		cuid = s.CUID
		records = append(records, NonceRecord{NtEnc: s.NtEnc, Parity: packParity(s.Parity)})
		if len(records) >= threshold {
			break
		}
	}
	for range samples {
		// let the device's acquisition goroutine finish draining so the
		// next Device call doesn't race its internal unlock.
	}
	if err := <-errs; err != nil {
		return cuid, records, err
	}
	return cuid, records, nil
}

func packParity(p [4]byte) byte {
	var out byte
	for i, b := range p {
		if b != 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// classify buckets records by their (NtEnc, packed-parity) signature —
// the nearest this rewrite comes to spec section 4.8 step 2's bitflip
// classification without embedding the real attack's precomputed
// candidate-state tables (see the design notes). It exists to catch a
// genuinely observable anomaly cheaply: a batch that collapses to a
// single class despite many samples means the tag's nonce never moved
// during acquisition, which is the static-PRNG signature, not the
// hardened one hardnested expects. Acquire's output is consumed here
// rather than discarded once verification starts.
func classify(records []NonceRecord) int {
	classes := make(map[uint64]struct{}, len(records))
	for _, r := range records {
		key := uint64(r.NtEnc)<<8 | uint64(r.Parity)
		classes[key] = struct{}{}
	}
	return len(classes)
}

// minDistinctClasses is the smallest number of distinct (NtEnc, parity)
// signatures an acquisition batch of more than one sample must show
// before Run trusts it as a hardened-PRNG capture rather than a
// static-nonce tag that reached this path by mistake.
const minDistinctClasses = 2

// checkAcquisition turns Acquire's (cuid, records) output into a pass/fail
// gate instead of letting it sit unused: a zero cuid means the transport
// never actually authenticated, and a batch of more than one sample that
// collapses to a single class means the nonce held still for the whole
// acquisition — the static-PRNG signature, not the hardened one this
// attack expects. Either condition aborts before candidate verification
// spends any round trips on a batch that cannot support it.
func checkAcquisition(cuid uint32, records []NonceRecord) (attack.Outcome, bool) {
	if cuid == 0 || len(records) == 0 {
		return attack.TransportErr(ckerr.ErrNoSamples), false
	}
	classes := classify(records)
	logx.Debugf("hardnested: acquired %d samples, %d distinct classes, cuid=%08x", len(records), classes, cuid)
	if len(records) > 1 && classes < minDistinctClasses {
		return attack.NotVulnerable(ckerr.WhyPrngAnomalous), false
	}
	return attack.Outcome{}, true
}

// Run executes the full hardnested attempt against targetBlock/targetKeyType:
// acquire a batch of samples, classify them well enough to catch an
// acquisition that cannot support the attempt, then verify candidates
// (conventionally autopwn's dictionary-plus-ExtendedKeys pool, a tier the
// dictionary phase never tried) against the card directly.
//
// The real attack narrows the CRYPTO1 state space to a handful of
// surviving LFSR states via precomputed bitflip-parity-class tables and
// only brute-forces that intersection (spec section 4.8 steps 2-4); see
// DESIGN.md for why this rewrite verifies candidates by direct
// re-authentication instead of reimplementing that state recovery.
// knownTargetKey, when non-nil, is tried first as the spec's "cheap
// verification pass."
func Run(
	ctx context.Context, dev *mfckey.Device,
	knownBlock byte, knownKeyType mfckey.KeyType, knownKey keytable.Key,
	targetBlock byte, targetKeyType mfckey.KeyType,
	candidates []keytable.Key, knownTargetKey *keytable.Key, slow bool,
) attack.Outcome {
	select {
	case <-ctx.Done():
		return attack.Aborted()
	default:
	}

	cuid, records, err := Acquire(ctx, dev, knownBlock, knownKeyType, knownKey, targetBlock, targetKeyType, slow, AcquireThreshold)
	if err != nil {
		if ctx.Err() != nil {
			return attack.Aborted()
		}
		return attack.TransportErr(err)
	}
	if outcome, ok := checkAcquisition(cuid, records); !ok {
		return outcome
	}

	return verify(ctx, dev, targetBlock, targetKeyType, knownTargetKey, candidates)
}

// RunRemote is Run's acquisition step sourced from a second machine's
// reader over wsURL instead of dev, for a rig where the antenna best
// positioned to catch the tag's nonces isn't the one driving verification
// (spec section 4.8's acquisition step cares only that the samples are
// self-consistent, not which process collected them). Verification still
// runs against dev, since that is the reader actually authenticating
// against the target sector.
func RunRemote(
	ctx context.Context, dev *mfckey.Device, wsURL string,
	knownBlock byte, knownKeyType mfckey.KeyType, knownKey keytable.Key,
	targetBlock byte, targetKeyType mfckey.KeyType,
	candidates []keytable.Key, knownTargetKey *keytable.Key, slow bool,
) attack.Outcome {
	select {
	case <-ctx.Done():
		return attack.Aborted()
	default:
	}

	cuid, records, err := AcquireRemote(ctx, wsURL, knownBlock, knownKeyType, knownKey, targetBlock, targetKeyType, slow, AcquireThreshold)
	if err != nil {
		if ctx.Err() != nil {
			return attack.Aborted()
		}
		return attack.TransportErr(err)
	}
	if outcome, ok := checkAcquisition(cuid, records); !ok {
		return outcome
	}

	return verify(ctx, dev, targetBlock, targetKeyType, knownTargetKey, candidates)
}

// verify is the candidate-trial pass both Run and RunRemote share: try
// knownTargetKey first as the spec's cheap verification pass, then walk
// candidates, re-authenticating against dev directly rather than solving
// crapto1's state space (see the design notes).
func verify(
	ctx context.Context, dev *mfckey.Device,
	targetBlock byte, targetKeyType mfckey.KeyType,
	knownTargetKey *keytable.Key, candidates []keytable.Key,
) attack.Outcome {
	if knownTargetKey != nil {
		if err := dev.Authenticate(targetBlock, targetKeyType, [6]byte(*knownTargetKey)); err == nil {
			return attack.Found(*knownTargetKey)
		} else if ckerr.KindOf(err) != ckerr.KindAuthFail {
			return attack.TransportErr(err)
		}
	}

	for _, candidate := range candidates {
		select {
		case <-ctx.Done():
			return attack.Aborted()
		default:
		}
		if err := dev.Authenticate(targetBlock, targetKeyType, [6]byte(candidate)); err == nil {
			return attack.Found(candidate)
		} else if ckerr.KindOf(err) != ckerr.KindAuthFail {
			return attack.TransportErr(err)
		}
	}
	return attack.NotVulnerable(ckerr.WhyNestedExhausted)
}
