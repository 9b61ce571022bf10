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
	"encoding/binary"
	"io"

	"github.com/keyforge/mfckey/ckerr"
)

// eofSentinel terminates a nonces file in place of a length prefix, per
// spec section 6.
const eofSentinel uint32 = 0xFFFFFFFF

// NonceRecord is one acquired sample as persisted to a nonces file:
// encrypted nonce plus its packed per-byte parity bits.
type NonceRecord struct {
	NtEnc  uint32
	Parity byte
}

// WriteNoncesFile writes the nonces-file interchange format spec section 6
// defines: a little-endian cuid header, one (nt_enc, par) record per
// sample, terminated by the 0xFFFFFFFF sentinel.
func WriteNoncesFile(w io.Writer, cuid uint32, records []NonceRecord) error {
	if err := binary.Write(w, binary.LittleEndian, cuid); err != nil {
		return err
	}
	for _, r := range records {
		if err := binary.Write(w, binary.LittleEndian, r.NtEnc); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, r.Parity); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, eofSentinel)
}

// ReadNoncesFile reads back a file WriteNoncesFile produced.
func ReadNoncesFile(r io.Reader) (uint32, []NonceRecord, error) {
	var cuid uint32
	if err := binary.Read(r, binary.LittleEndian, &cuid); err != nil {
		return 0, nil, &ckerr.FileError{Reason: ckerr.FileMalformed, Err: err}
	}

	var records []NonceRecord
	for {
		var ntEnc uint32
		if err := binary.Read(r, binary.LittleEndian, &ntEnc); err != nil {
			if err == io.EOF {
				return cuid, records, nil // missing sentinel tolerated, matches a truncated capture
			}
			return cuid, records, &ckerr.FileError{Reason: ckerr.FileMalformed, Err: err}
		}
		if ntEnc == eofSentinel {
			return cuid, records, nil
		}
		var par byte
		if err := binary.Read(r, binary.LittleEndian, &par); err != nil {
			return cuid, records, &ckerr.FileError{Reason: ckerr.FileWrongSize, Err: err}
		}
		records = append(records, NonceRecord{NtEnc: ntEnc, Parity: par})
	}
}
