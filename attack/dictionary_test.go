// mfckey
// Copyright (c) 2026 The mfckey Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later

package attack_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/attack"
	itesting "github.com/keyforge/mfckey/internal/testing"
	"github.com/keyforge/mfckey/keytable"
	"github.com/keyforge/mfckey/profile"
)

func TestLoadDictionarySkipsMalformedLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "dict.txt")
	content := "# comment\n\nffffffffffff\nnothex\nA0A1A2A3A4A5\ntooshort\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	keys, warnings, err := attack.LoadDictionary(path)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Len(t, warnings, 2)
}

func TestLoadDictionaryMissingFile(t *testing.T) {
	t.Parallel()
	_, _, err := attack.LoadDictionary("/nonexistent/path/dict.txt")
	require.Error(t, err)
}

func TestRunFastCheckFindsPlantedKey(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	planted := keytable.Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	card.SetSectorKeys(3, [6]byte(planted), [6]byte(planted))

	dev, err := mfckey.New(card)
	require.NoError(t, err)

	table := keytable.New(profile.OneK.Sectors())
	keys := attack.MergeDictionary(nil)

	found, err := attack.RunFastCheck(context.Background(), dev, table, keys, mfckey.StrategyBreadth)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, found, 2)
	assert.True(t, table.Get(3).Found(keytable.A))
	assert.Equal(t, planted, table.Get(3).Key(keytable.A))
}

func TestRunFastCheckIdempotent(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	dev, err := mfckey.New(card)
	require.NoError(t, err)

	table := keytable.New(profile.OneK.Sectors())
	keys := attack.MergeDictionary(nil)

	_, err = attack.RunFastCheck(context.Background(), dev, table, keys, mfckey.StrategyDepth)
	require.NoError(t, err)
	firstFound := table.CountFound()

	secondFound, err := attack.RunFastCheck(context.Background(), dev, table, keys, mfckey.StrategyDepth)
	require.NoError(t, err)
	assert.Equal(t, 0, secondFound)
	assert.Equal(t, firstFound, table.CountFound())
}
