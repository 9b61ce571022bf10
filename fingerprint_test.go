// mfckey
// Copyright (c) 2026 The mfckey Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later

package mfckey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCardFingerprintIsStableForTheSameIdentity(t *testing.T) {
	id := CardID{UID: []byte{1, 2, 3, 4}, ATQA: [2]byte{0x00, 0x04}, SAK: 0x08}
	a := NewCardFingerprint(id)
	b := NewCardFingerprint(id)
	assert.Equal(t, a, b)
	assert.Equal(t, a.String(), b.String())
}

func TestNewCardFingerprintDiffersAcrossIdentities(t *testing.T) {
	a := NewCardFingerprint(CardID{UID: []byte{1, 2, 3, 4}, ATQA: [2]byte{0x00, 0x04}, SAK: 0x08})
	b := NewCardFingerprint(CardID{UID: []byte{1, 2, 3, 5}, ATQA: [2]byte{0x00, 0x04}, SAK: 0x08})
	assert.NotEqual(t, a.String(), b.String())
}

func TestNewCardFingerprintDistinguishesUIDLength(t *testing.T) {
	short := NewCardFingerprint(CardID{UID: []byte{1, 2, 3, 4}, ATQA: [2]byte{0x00, 0x04}, SAK: 0x08})
	long := NewCardFingerprint(CardID{UID: []byte{1, 2, 3, 4, 0, 0, 0}, ATQA: [2]byte{0x00, 0x04}, SAK: 0x08})
	assert.NotEqual(t, short.String(), long.String())
}
