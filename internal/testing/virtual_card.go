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

// Package testing provides an in-memory MIFARE Classic card that
// implements mfckey.Transport, so attack and orchestrator tests exercise
// real CRYPTO1 authentication instead of canned byte fixtures — the same
// role the teacher library's virtual NFC tag plays for its own tests,
// adapted here to simulate key-protected sectors rather than NDEF memory.
package testing

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/ckerr"
	"github.com/keyforge/mfckey/crypto1"
	"github.com/keyforge/mfckey/profile"
)

// VirtualCard simulates a MIFARE Classic card: per-sector keys, access
// bits, and block memory, authenticated the same way a real card would
// reject a wrong key. It implements mfckey.Transport.
type VirtualCard struct {
	Profile profile.Profile
	UID     []byte
	SAK     byte
	ATQA    [2]byte

	memory     [][16]byte
	keyA, keyB [][6]byte
	prng       prngClass

	// nonceCounter is the weak-PRNG's running state, advanced by
	// crypto1.PrngSuccessor on every nonce draw so a nested attack's
	// successor relation holds across samples the way it does on real
	// silicon. staticNonce is returned unchanged when prng == prngStatic.
	nonceCounter uint32
	staticNonce  uint32
	hardenedSeed uint32

	authedBlock   int
	authedKeyType mfckey.KeyType

	// AuthAttempts counts key trials: every Authenticate call (ReadBlock,
	// WriteBlock and AcquireNonces included) and every key CheckKeysFast
	// tries against a sector, whether or not the key matched.
	AuthAttempts int

	// NoncesPerAcquire bounds how many samples AcquireNonces emits before
	// closing the channel; defaults to 30 when zero.
	NoncesPerAcquire int
}

type prngClass int

const (
	prngWeak prngClass = iota
	prngHardened
	prngStatic
)

// NewVirtualCard builds a blank card of the given profile with every
// sector trailer set to the default transport key and permissive access
// bits, matching a factory-fresh tag.
func NewVirtualCard(p profile.Profile, uid []byte) *VirtualCard {
	n := p.Blocks()
	v := &VirtualCard{
		Profile:      p,
		UID:          uid,
		SAK:          0x08,
		ATQA:         [2]byte{0x00, 0x04},
		memory:       make([][16]byte, n),
		keyA:         make([][6]byte, p.Sectors()),
		keyB:         make([][6]byte, p.Sectors()),
		prng:         prngWeak,
		nonceCounter: 0x01020304,
		staticNonce:  0x01020304,
		hardenedSeed: 0x9E3779B1,
		authedBlock:  -1,
	}
	defaultKey := [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	for s := 0; s < p.Sectors(); s++ {
		v.keyA[s] = defaultKey
		v.keyB[s] = defaultKey
		trailer := p.FirstBlockOf(s) + p.BlocksOf(s) - 1
		copy(v.memory[trailer][0:6], defaultKey[:])
		copy(v.memory[trailer][6:10], []byte{0xFF, 0x07, 0x80, 0x69})
		copy(v.memory[trailer][10:16], defaultKey[:])
	}
	return v
}

// SetSectorKeys overrides sector s's keys (used by tests to simulate a
// card that has moved off the default transport key).
func (v *VirtualCard) SetSectorKeys(sector int, a, b [6]byte) {
	v.keyA[sector] = a
	v.keyB[sector] = b
	trailer := v.Profile.FirstBlockOf(sector) + v.Profile.BlocksOf(sector) - 1
	copy(v.memory[trailer][0:6], a[:])
	copy(v.memory[trailer][10:16], b[:])
}

// SetPRNGHardened / SetPRNGStatic switch the simulated nonce generator
// class away from the default weak PRNG.
func (v *VirtualCard) SetPRNGHardened() { v.prng = prngHardened }
func (v *VirtualCard) SetPRNGStatic()   { v.prng = prngStatic }

// WriteBlockRaw seeds block memory directly, bypassing authentication —
// used by tests to set up non-trailer block contents before a run.
func (v *VirtualCard) WriteBlockRaw(block int, data [16]byte) {
	v.memory[block] = data
}

func (v *VirtualCard) keyFor(sector int, keyType mfckey.KeyType) [6]byte {
	if keyType == mfckey.KeyTypeB {
		return v.keyB[sector]
	}
	return v.keyA[sector]
}

func (v *VirtualCard) checkKey(sector int, keyType mfckey.KeyType, key [6]byte) bool {
	return v.keyFor(sector, keyType) == key
}

func (v *VirtualCard) cuid() uint32 {
	if len(v.UID) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(v.UID[:4])
}

// nextNonce draws the tag's next plaintext nonce, following whichever
// PRNG class the card currently simulates.
func (v *VirtualCard) nextNonce() uint32 {
	switch v.prng {
	case prngStatic:
		return v.staticNonce
	case prngHardened:
		v.hardenedSeed = v.hardenedSeed*2654435761 + 1
		return v.hardenedSeed
	default:
		v.nonceCounter = crypto1.PrngSuccessor(v.nonceCounter, 1)
		return v.nonceCounter
	}
}

// ntEncFor computes the encrypted nonce a real tag would present while
// authenticating block/keyType with key. Decrypting NtEnc with the same
// key reproduces nt, which is what lets an attack verify a candidate key
// against a captured sample.
func (v *VirtualCard) ntEncFor(key [6]byte, nt uint32) uint32 {
	return crypto1.EncryptNonce(key, v.cuid(), nt)
}

func parityBytes(nt uint32) [4]byte {
	var p [4]byte
	for i := 0; i < 4; i++ {
		b := byte(nt >> uint(8*(3-i)))
		if crypto1.OddParity8(b) {
			p[i] = 1
		}
	}
	return p
}

// --- mfckey.Transport ---

func (v *VirtualCard) Select() (mfckey.CardID, error) {
	return mfckey.CardID{UID: v.UID, ATQA: v.ATQA, SAK: v.SAK}, nil
}

func (v *VirtualCard) Authenticate(block byte, keyType mfckey.KeyType, key [6]byte) error {
	v.AuthAttempts++
	sector := v.Profile.SectorOf(int(block))
	if !v.checkKey(sector, keyType, key) {
		return ckerr.ErrAuthFail
	}
	v.authedBlock = int(block)
	v.authedKeyType = keyType
	return nil
}

func (v *VirtualCard) ReadBlock(block byte, keyType mfckey.KeyType, key [6]byte) ([16]byte, error) {
	if err := v.Authenticate(block, keyType, key); err != nil {
		return [16]byte{}, err
	}
	if int(block) >= len(v.memory) {
		return [16]byte{}, fmt.Errorf("block %d out of range", block)
	}
	return v.memory[block], nil
}

func (v *VirtualCard) WriteBlock(block byte, keyType mfckey.KeyType, key [6]byte, data [16]byte) error {
	if err := v.Authenticate(block, keyType, key); err != nil {
		return err
	}
	v.memory[block] = data
	return nil
}

// CheckKeysFast trials every key in keys against every sector set in
// sectorMask, both key types, the way the device's bulk-check command
// would, without needing a round trip per key.
func (v *VirtualCard) CheckKeysFast(
	sectorMask []bool, firstChunk, lastChunk bool,
	strategy mfckey.CheckStrategy, keys [][6]byte,
) (mfckey.FastCheckResult, error) {
	_ = firstChunk
	_ = lastChunk
	_ = strategy
	res := mfckey.FastCheckResult{
		FoundA: make([]bool, v.Profile.Sectors()),
		FoundB: make([]bool, v.Profile.Sectors()),
		KeysA:  make([][6]byte, v.Profile.Sectors()),
		KeysB:  make([][6]byte, v.Profile.Sectors()),
	}
	for s := 0; s < v.Profile.Sectors(); s++ {
		if s >= len(sectorMask) || !sectorMask[s] {
			continue
		}
		for _, k := range keys {
			v.AuthAttempts++
			if !res.FoundA[s] && v.keyA[s] == k {
				res.FoundA[s] = true
				res.KeysA[s] = k
			}
			if !res.FoundB[s] && v.keyB[s] == k {
				res.FoundB[s] = true
				res.KeysB[s] = k
			}
		}
	}
	return res, nil
}

// AcquireNonces authenticates to knownBlock/knownKey, then streams
// NoncesPerAcquire nested-authentication nonce samples for
// targetBlock/targetKeyType, encrypted under that sector's real key so a
// candidate-key search in tests can verify a guess by decryption.
func (v *VirtualCard) AcquireNonces(
	knownBlock byte, knownKeyType mfckey.KeyType, knownKey [6]byte,
	targetBlock byte, targetKeyType mfckey.KeyType, slow bool,
) (<-chan mfckey.NonceSample, <-chan error) {
	samples := make(chan mfckey.NonceSample, 1)
	errs := make(chan error, 1)

	n := v.NoncesPerAcquire
	if n <= 0 {
		n = 30
	}

	go func() {
		defer close(samples)
		if err := v.Authenticate(knownBlock, knownKeyType, knownKey); err != nil {
			errs <- err
			return
		}
		targetSector := v.Profile.SectorOf(int(targetBlock))
		targetKey := v.keyFor(targetSector, targetKeyType)
		cuid := v.cuid()
		for i := 0; i < n; i++ {
			nt := v.nextNonce()
			sample := mfckey.NonceSample{
				CUID:          cuid,
				NtEnc:         v.ntEncFor(targetKey, nt),
				Parity:        parityBytes(nt),
				TargetBlock:   targetBlock,
				TargetKeyType: targetKeyType,
			}
			samples <- sample
			if slow {
				// real hardware throttles nested acquisitions against
				// tags that need a cooldown between authentications;
				// the virtual card has nothing to wait on.
				_ = slow
			}
		}
	}()

	return samples, errs
}

func (v *VirtualCard) SetTimeout(time.Duration) error { return nil }
func (v *VirtualCard) Close() error                   { return nil }
func (v *VirtualCard) SetModulation(int) error        { return nil }

func (v *VirtualCard) EmulatorGetMem() ([]byte, error) {
	out := make([]byte, 0, len(v.memory)*16)
	for _, b := range v.memory {
		out = append(out, b[:]...)
	}
	return out, nil
}

func (v *VirtualCard) EmulatorSetMem(data []byte) error {
	for i := 0; i+16 <= len(data) && i/16 < len(v.memory); i += 16 {
		copy(v.memory[i/16][:], data[i:i+16])
	}
	return nil
}

func (v *VirtualCard) EmulatorFillFromCard(sectorCount int, keyType mfckey.KeyType, key [6]byte) error {
	for s := 0; s < sectorCount && s < v.Profile.Sectors(); s++ {
		if !v.checkKey(s, keyType, key) {
			return ckerr.ErrAuthFail
		}
	}
	return nil
}

func (v *VirtualCard) DetectPRNGStatic() (bool, error) {
	return v.prng == prngStatic, nil
}

func (v *VirtualCard) DetectPRNGWeak() (mfckey.PRNGClass, error) {
	switch v.prng {
	case prngHardened:
		return mfckey.PRNGHardened, nil
	case prngStatic:
		return mfckey.PRNGStatic, nil
	default:
		return mfckey.PRNGWeak, nil
	}
}
