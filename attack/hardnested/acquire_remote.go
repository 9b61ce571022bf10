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
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/keytable"
)

// remoteAcquireRequest is what AcquireRemote sends once, right after the
// handshake, to start a remote acquisition round.
type remoteAcquireRequest struct {
	KnownBlock    byte    `json:"known_block"`
	KnownKeyType  byte    `json:"known_key_type"`
	KnownKey      [6]byte `json:"known_key"`
	TargetBlock   byte    `json:"target_block"`
	TargetKeyType byte    `json:"target_key_type"`
	Slow          bool    `json:"slow"`
	Threshold     int     `json:"threshold"`
}

// remoteAcquireSample is one wire message in the reply stream: either a
// sample (CUID/NtEnc/Parity), a terminal Done, or a terminal Err.
type remoteAcquireSample struct {
	CUID   uint32 `json:"cuid"`
	NtEnc  uint32 `json:"nt_enc"`
	Parity byte   `json:"parity"`
	Done   bool   `json:"done,omitempty"`
	Err    string `json:"error,omitempty"`
}

// AcquireRemote is Acquire's wire-level twin: it asks a second machine's
// reader, reached over a websocket at wsURL, to run the acquisition round
// and stream samples back, one JSON message per sample, terminated by a
// Done or Err message. The samples it returns feed the same verify step
// Acquire's do.
func AcquireRemote(
	ctx context.Context, wsURL string,
	knownBlock byte, knownKeyType mfckey.KeyType, knownKey keytable.Key,
	targetBlock byte, targetKeyType mfckey.KeyType, slow bool, threshold int,
) (uint32, []NonceRecord, error) {
	if threshold <= 0 {
		threshold = AcquireThreshold
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("hardnested: dialing remote acquisition endpoint %s: %w", wsURL, err)
	}
	defer conn.Close()

	req := remoteAcquireRequest{
		KnownBlock:    knownBlock,
		KnownKeyType:  byte(knownKeyType),
		KnownKey:      [6]byte(knownKey),
		TargetBlock:   targetBlock,
		TargetKeyType: byte(targetKeyType),
		Slow:          slow,
		Threshold:     threshold,
	}
	if err := conn.WriteJSON(req); err != nil {
		return 0, nil, fmt.Errorf("hardnested: sending remote acquisition request: %w", err)
	}

	var cuid uint32
	records := make([]NonceRecord, 0, threshold)
	for {
		select {
		case <-ctx.Done():
			return cuid, records, ctx.Err()
		default:
		}

		var sample remoteAcquireSample
		if err := conn.ReadJSON(&sample); err != nil {
			return cuid, records, fmt.Errorf("hardnested: reading remote acquisition sample: %w", err)
		}
		if sample.Err != "" {
			return cuid, records, fmt.Errorf("hardnested: remote acquisition failed: %s", sample.Err)
		}
		if sample.Done {
			return cuid, records, nil
		}
		cuid = sample.CUID
		records = append(records, NonceRecord{NtEnc: sample.NtEnc, Parity: sample.Parity})
		if len(records) >= threshold {
			return cuid, records, nil
		}
	}
}
