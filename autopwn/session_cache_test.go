// mfckey
// Copyright (c) 2026 The mfckey Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later

package autopwn_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/attack"
	"github.com/keyforge/mfckey/autopwn"
	itesting "github.com/keyforge/mfckey/internal/testing"
	"github.com/keyforge/mfckey/keytable"
	"github.com/keyforge/mfckey/profile"
)

// A key recovered against one card in an earlier Run carries over to a
// later Run against the same physical card (same fingerprint), so a
// second pass against the identical off-dictionary key clears straight
// from the dictionary phase instead of needing nested again. The target
// key is drawn from attack.ExtendedKeys so the first Run can actually
// recover it via nested's extended candidate pool before the second Run
// gets to rely on the session cache.
func TestRunReusesPriorSessionKeyForTheSameCard(t *testing.T) {
	uid := []byte{0x9, 0x9, 0x9, 0x9}
	target := [6]byte(attack.ExtendedKeys[1])

	first := itesting.NewVirtualCard(profile.OneK, uid)
	first.SetSectorKeys(3, target, target)
	devFirst, err := mfckey.New(first)
	require.NoError(t, err)
	res, err := autopwn.Run(context.Background(), devFirst, autopwn.Options{Profile: profile.OneK})
	require.NoError(t, err)
	require.True(t, res.Table.Get(3).Found(keytable.A))
	require.Equal(t, keytable.Key(target), res.Table.Get(3).Key(keytable.A))

	second := itesting.NewVirtualCard(profile.OneK, uid)
	second.SetSectorKeys(3, target, target)
	devSecond, err := mfckey.New(second)
	require.NoError(t, err)
	res2, err := autopwn.Run(context.Background(), devSecond, autopwn.Options{Profile: profile.OneK})
	require.NoError(t, err)
	assert.True(t, res2.Table.Get(3).Found(keytable.A))
	assert.Equal(t, keytable.Key(target), res2.Table.Get(3).Key(keytable.A))
}
