// mfckey
// Copyright (c) 2026 The mfckey Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later

package mfkey32_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyforge/mfckey/attack/mfkey32"
	"github.com/keyforge/mfckey/keytable"
)

func candidatePool(target keytable.Key) []keytable.Key {
	return append([]keytable.Key{
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5},
	}, target)
}

func TestRecoverLiveAndSupercardPathsAgree(t *testing.T) {
	t.Parallel()
	target := keytable.Key{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	const cuid, nt, nr, nr2 = 0xDEADBEEF, 0x01020304, 0x0A0B0C0D, 0x11121314

	liveTrace := mfkey32.BuildTrace(target, cuid, nt, nr, nr2, true)
	liveTrace.Candidates = candidatePool(target)
	liveKey, liveOK := mfkey32.Recover(liveTrace)
	require.True(t, liveOK)

	var buf bytes.Buffer
	require.NoError(t, mfkey32.WriteTraceFile(&buf, liveTrace))
	fileTrace, err := mfkey32.ReadTraceFile(&buf, candidatePool(target))
	require.NoError(t, err)
	fileKey, fileOK := mfkey32.Recover(fileTrace)
	require.True(t, fileOK)

	assert.Equal(t, target, liveKey)
	assert.Equal(t, liveKey, fileKey)
}

func TestRecoverFailsWhenTargetNotInCandidatePool(t *testing.T) {
	t.Parallel()
	target := keytable.Key{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	trace := mfkey32.BuildTrace(target, 0xDEADBEEF, 0x01020304, 0x0A0B0C0D, 0, false)
	trace.Candidates = []keytable.Key{{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}}

	_, ok := mfkey32.Recover(trace)
	assert.False(t, ok)
}

func TestRecoverRejectsMismatchedSecondSession(t *testing.T) {
	t.Parallel()
	target := keytable.Key{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	trace := mfkey32.BuildTrace(target, 0xDEADBEEF, 0x01020304, 0x0A0B0C0D, 0x11121314, true)
	trace.Ar2 ^= 1 // corrupt the second session so it no longer matches
	trace.Candidates = candidatePool(target)

	_, ok := mfkey32.Recover(trace)
	assert.False(t, ok)
}
