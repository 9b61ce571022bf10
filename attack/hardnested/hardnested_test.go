// mfckey
// Copyright (c) 2026 The mfckey Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later

package hardnested_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/attack"
	"github.com/keyforge/mfckey/attack/hardnested"
	"github.com/keyforge/mfckey/ckerr"
	itesting "github.com/keyforge/mfckey/internal/testing"
	"github.com/keyforge/mfckey/keytable"
	"github.com/keyforge/mfckey/profile"
)

func TestNoncesFileRoundTrip(t *testing.T) {
	t.Parallel()
	records := []hardnested.NonceRecord{
		{NtEnc: 0xAABBCCDD, Parity: 0x05},
		{NtEnc: 0x11223344, Parity: 0x0A},
	}
	var buf bytes.Buffer
	require.NoError(t, hardnested.WriteNoncesFile(&buf, 0xCAFEBABE, records))

	cuid, got, err := hardnested.ReadNoncesFile(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), cuid)
	assert.Equal(t, records, got)
}

func TestAcquireCollectsSamplesWithConsistentCUID(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	card.SetPRNGHardened()
	card.NoncesPerAcquire = 10
	dev, err := mfckey.New(card)
	require.NoError(t, err)

	known := keytable.Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	cuid, records, err := hardnested.Acquire(context.Background(), dev, 0, mfckey.KeyTypeA, known, 4, mfckey.KeyTypeA, false, 0)
	require.NoError(t, err)
	assert.Len(t, records, 10)
	assert.NotZero(t, cuid)
}

// A static-nonce card reaching hardnested (misrouted, or a caller
// skipping autopwn's own PRNG dispatch) produces a batch that collapses
// to a single (NtEnc, parity) class, which checkAcquisition catches
// before spending any candidate round trips on a batch that cannot
// support them.
func TestRunReportsAnomalyOnStaticNonceCard(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	card.SetPRNGStatic()
	target := keytable.Key{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	card.SetSectorKeys(1, [6]byte(target), [6]byte(target))
	dev, err := mfckey.New(card)
	require.NoError(t, err)

	known := keytable.Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	outcome := hardnested.Run(context.Background(), dev, 0, mfckey.KeyTypeA, known, 4, mfckey.KeyTypeA, nil, nil, false)
	require.Equal(t, attack.StatusNotVulnerable, outcome.Status)
	assert.Equal(t, ckerr.WhyPrngAnomalous, outcome.Why)
}

func TestRunVerifiesSuppliedKnownTargetKey(t *testing.T) {
	t.Parallel()
	card := itesting.NewVirtualCard(profile.OneK, []byte{1, 2, 3, 4})
	card.SetPRNGHardened()
	target := keytable.Key{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	card.SetSectorKeys(1, [6]byte(target), [6]byte(target))
	dev, err := mfckey.New(card)
	require.NoError(t, err)

	known := keytable.Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	outcome := hardnested.Run(context.Background(), dev, 0, mfckey.KeyTypeA, known, 4, mfckey.KeyTypeA, nil, &target, false)
	require.Equal(t, attack.StatusFound, outcome.Status)
	assert.Equal(t, target, outcome.Key)
}
