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

/*
Package mfckey is the host-side brain of a MIFARE Classic key-recovery and
card-manipulation engine. It drives a contactless transceiver (the "device")
through a small set of authenticated operations and composes the attacks in
subpackage attack (dictionary, darkside, nested, hardnested, static-nested)
under a single fallback policy in subpackage autopwn.

The device itself only performs timing-sensitive ISO/IEC 14443-A exchanges;
this package never touches raw framing or anticollision bit-fiddling. It
talks to the device through the Transport interface, and a Device wraps a
Transport with the typed, higher-level operations every attack needs:
authenticate, read a block, bulk-check a dictionary, stream encrypted
nonces, and drive the device's emulator memory.

Basic usage:

	tp, err := uart.Open("/dev/ttyUSB0")
	if err != nil {
	    log.Fatal(err)
	}
	defer tp.Close()

	dev, err := mfckey.New(tp, mfckey.WithTimeout(2*time.Second))
	if err != nil {
	    log.Fatal(err)
	}

	card, err := dev.Select()
	if err != nil {
	    log.Fatal(err)
	}

	result, err := autopwn.Run(context.Background(), dev, autopwn.Options{
	    Profile: profile.OneK,
	})

Error Handling:

Every failure mode named in the engine's error taxonomy (package ckerr) is
inspectable with errors.Is/errors.As rather than string matching:

	if ckerr.KindOf(err) == ckerr.KindNoTag {
	    // no tag on the field
	}

Thread Safety:

Device methods may be called from multiple goroutines: a mutex inside
Device serializes them, so at most one command is in flight, and
AcquireNonces holds that mutex until its sample stream ends. No attack
parallelizes CPU-bound work; hardnested's classification and candidate
verification run on the calling goroutine.
*/
package mfckey
