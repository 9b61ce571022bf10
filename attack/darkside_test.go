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
	"github.com/keyforge/mfckey/ckerr"
	itesting "github.com/keyforge/mfckey/internal/testing"
	"github.com/keyforge/mfckey/keytable"
	"github.com/keyforge/mfckey/profile"
)

func TestRunDarksideFindsCandidateKey(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	planted := attack.DefaultKeys[2]
	card.SetSectorKeys(0, [6]byte(planted), [6]byte(planted))

	dev, err := mfckey.New(card)
	require.NoError(t, err)

	outcome := attack.RunDarkside(context.Background(), dev, 3, mfckey.KeyTypeA)
	require.Equal(t, attack.StatusFound, outcome.Status)
	assert.Equal(t, keytable.Key(planted), outcome.Key)
}

func TestRunDarksideNotVulnerableOnHardenedPRNG(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	card.SetPRNGHardened()
	card.SetSectorKeys(0, [6]byte(attack.DefaultKeys[0]), [6]byte(attack.DefaultKeys[0]))

	dev, err := mfckey.New(card)
	require.NoError(t, err)

	outcome := attack.RunDarkside(context.Background(), dev, 3, mfckey.KeyTypeA)
	require.Equal(t, attack.StatusNotVulnerable, outcome.Status)
	assert.Equal(t, ckerr.WhyPrngUnpredictable, outcome.Why)
}

func TestRunDarksideNotVulnerableWhenKeyNotInCandidateList(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	card.SetSectorKeys(0, [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66})

	dev, err := mfckey.New(card)
	require.NoError(t, err)

	outcome := attack.RunDarkside(context.Background(), dev, 3, mfckey.KeyTypeA)
	require.Equal(t, attack.StatusNotVulnerable, outcome.Status)
	assert.Equal(t, ckerr.WhyPrngAnomalous, outcome.Why)
}

func TestRunDarksideAbortsOnCancelledContext(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	dev, err := mfckey.New(card)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := attack.RunDarkside(ctx, dev, 3, mfckey.KeyTypeA)
	require.Equal(t, attack.StatusAborted, outcome.Status)
}
