// mfckey
// Copyright (c) 2026 The mfckey Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later

package attack_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/attack"
	itesting "github.com/keyforge/mfckey/internal/testing"
	"github.com/keyforge/mfckey/keytable"
	"github.com/keyforge/mfckey/profile"
)

func TestBruteRecoversKeyWithLowByteUnknown(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	target := keytable.Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0x42}
	card.SetSectorKeys(0, [6]byte(target), [6]byte(target))

	dev, err := mfckey.New(card)
	require.NoError(t, err)

	partial := keytable.Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0x00}
	mask := uint64(0xFFFFFFFFFF00) // every bit known except the last byte

	key, ok := attack.Brute(context.Background(), dev, 3, mfckey.KeyTypeA, partial, mask)
	require.True(t, ok)
	assert.Equal(t, target, key)
}

func TestBruteRefusesTooManyUnknownBits(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	dev, err := mfckey.New(card)
	require.NoError(t, err)

	_, ok := attack.Brute(context.Background(), dev, 3, mfckey.KeyTypeA, keytable.Key{}, 0)
	assert.False(t, ok)
}
