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

// Package ioexport writes the artifacts a recovery run leaves behind: the
// authenticated card dump (binary, EML, JSON) and the key table (binary
// key file, plain-text key list), per spec section 6.
package ioexport

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/ckerr"
	"github.com/keyforge/mfckey/keytable"
	"github.com/keyforge/mfckey/profile"
)

// CardDump is an authenticated, block-ordered memory image plus the card
// metadata and key table it was read with. Sector trailers in Blocks
// always hold both keys (bytes 0-6 Key A, bytes 10-16 Key B), filled in
// from the table regardless of what access conditions let a live reader
// see, so the on-disk dump is self-contained.
type CardDump struct {
	Profile profile.Profile
	UID     []byte
	ATQA    [2]byte
	SAK     byte
	Blocks  [][16]byte
	Table   *keytable.Table
	Partial bool
}

// DumpCard reads every block of card using whichever key each block's
// access conditions require, per spec section 4.11: trailers first (with
// Key A, falling back to Key B), then the decoded access conditions
// decide which key unlocks each data block. Blocks this run cannot
// authenticate for are left zeroed and the dump is flagged Partial.
func DumpCard(dev *mfckey.Device, id mfckey.CardID, prof profile.Profile, table *keytable.Table) (*CardDump, error) {
	dump := &CardDump{
		Profile: prof,
		UID:     id.UID,
		ATQA:    id.ATQA,
		SAK:     id.SAK,
		Blocks:  make([][16]byte, prof.Blocks()),
		Table:   table,
	}

	for s := 0; s < prof.Sectors(); s++ {
		entry := table.Get(s)
		trailerBlock := byte(prof.FirstBlockOf(s) + prof.BlocksOf(s) - 1)

		var trailer [16]byte
		var readErr error
		switch {
		case entry.Found(keytable.A):
			trailer, readErr = dev.ReadBlock(trailerBlock, mfckey.KeyTypeA, [6]byte(entry.Key(keytable.A)))
		case entry.Found(keytable.B):
			trailer, readErr = dev.ReadBlock(trailerBlock, mfckey.KeyTypeB, [6]byte(entry.Key(keytable.B)))
		default:
			readErr = ckerr.ErrAuthFail
		}
		if readErr != nil {
			dump.Partial = true
			continue
		}

		var trailerBytes [4]byte
		copy(trailerBytes[:], trailer[6:10])
		acs, _ := profile.DecodeTrailerBytes(trailerBytes)

		for b := prof.FirstBlockOf(s); b < prof.FirstBlockOf(s)+prof.BlocksOf(s)-1; b++ {
			area := profile.AreaData
			idx := b - prof.FirstBlockOf(s)
			if idx >= len(acs)-1 {
				idx = len(acs) - 2
			}
			perm := profile.CanRead(area, acs[idx])
			data, err := readDataBlock(dev, byte(b), perm, entry)
			if err != nil {
				dump.Partial = true
				continue
			}
			dump.Blocks[b] = data
		}

		if entry.Found(keytable.A) {
			copy(trailer[0:6], entry.Key(keytable.A)[:])
		}
		if entry.Found(keytable.B) {
			copy(trailer[10:16], entry.Key(keytable.B)[:])
		}
		dump.Blocks[trailerBlock] = trailer
	}

	return dump, nil
}

func readDataBlock(dev *mfckey.Device, block byte, perm profile.ReadPermission, entry keytable.SectorEntry) ([16]byte, error) {
	switch perm {
	case profile.ReadKeyBOnly:
		if entry.Found(keytable.B) {
			return dev.ReadBlock(block, mfckey.KeyTypeB, [6]byte(entry.Key(keytable.B)))
		}
	case profile.ReadKeyAOK:
		if entry.Found(keytable.A) {
			return dev.ReadBlock(block, mfckey.KeyTypeA, [6]byte(entry.Key(keytable.A)))
		}
		if entry.Found(keytable.B) {
			return dev.ReadBlock(block, mfckey.KeyTypeB, [6]byte(entry.Key(keytable.B)))
		}
	}
	return [16]byte{}, ckerr.ErrAuthFail
}

// WriteBin writes dump's memory image as block-ordered raw binary.
func WriteBin(w io.Writer, dump *CardDump) error {
	for _, b := range dump.Blocks {
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	return nil
}

// WriteEML writes dump's memory image as one hex-encoded line per block,
// the "EML" line-delimited format.
func WriteEML(w io.Writer, dump *CardDump) error {
	for _, b := range dump.Blocks {
		if _, err := fmt.Fprintln(w, hex.EncodeToString(b[:])); err != nil {
			return err
		}
	}
	return nil
}

// jsonDump is the on-disk shape WriteJSON produces.
type jsonDump struct {
	UID     string `json:"uid"`
	ATQA    string `json:"atqa"`
	SAK     string `json:"sak"`
	Blocks  int    `json:"blocks"`
	Partial bool   `json:"partial"`
	Payload string `json:"payload"`
}

// WriteJSON writes dump as a JSON envelope carrying card metadata plus
// the same block payload, hex-encoded.
func WriteJSON(w io.Writer, dump *CardDump) error {
	var payload []byte
	for _, b := range dump.Blocks {
		payload = append(payload, b[:]...)
	}
	doc := jsonDump{
		UID:     hex.EncodeToString(dump.UID),
		ATQA:    hex.EncodeToString(dump.ATQA[:]),
		SAK:     fmt.Sprintf("%02x", dump.SAK),
		Blocks:  len(dump.Blocks),
		Partial: dump.Partial,
		Payload: hex.EncodeToString(payload),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteKeyFile writes table as the binary key dump: sectors×6 bytes of
// Key A, then sectors×6 bytes of Key B, in sector order. Unrecovered
// keys are written as keytable.Unknown.
func WriteKeyFile(w io.Writer, table *keytable.Table) error {
	for idx := keytable.A; idx <= keytable.B; idx++ {
		for s := 0; s < table.Sectors(); s++ {
			e := table.Get(s)
			key := keytable.Unknown
			if e.Found(idx) {
				key = e.Key(idx)
			}
			if _, err := w.Write(key[:]); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteKeyListText writes table as a plain-text key list, one
// "sector,keytype,hexkey" line per recovered key, for hand copy-paste —
// the CSV-adjacent export the original tool's key-list dump produced
// alongside its binary key file.
func WriteKeyListText(w io.Writer, table *keytable.Table) error {
	var b strings.Builder
	for s := 0; s < table.Sectors(); s++ {
		e := table.Get(s)
		if e.Found(keytable.A) {
			fmt.Fprintf(&b, "%d,A,%s\n", s, e.Key(keytable.A))
		}
		if e.Found(keytable.B) {
			fmt.Fprintf(&b, "%d,B,%s\n", s, e.Key(keytable.B))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ReadKeyFile parses a file WriteKeyFile produced back into a key list of
// length 2*sectors, Key A block followed by Key B block.
func ReadKeyFile(r io.Reader, sectors int) ([]keytable.Key, error) {
	keys := make([]keytable.Key, 2*sectors)
	for i := range keys {
		if _, err := io.ReadFull(r, keys[i][:]); err != nil {
			return nil, &ckerr.FileError{Reason: ckerr.FileWrongSize, Err: err}
		}
	}
	return keys, nil
}

// LoadDumpFile reads a binary dump file produced by WriteBin back into a
// block slice, validating it holds an exact multiple of 16 bytes.
func LoadDumpFile(path string) ([][16]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ckerr.FileError{Path: path, Reason: ckerr.FileNotFound, Err: err}
		}
		return nil, &ckerr.FileError{Path: path, Reason: ckerr.FileMalformed, Err: err}
	}
	if len(raw)%16 != 0 {
		return nil, &ckerr.FileError{Path: path, Reason: ckerr.FileWrongSize}
	}
	blocks := make([][16]byte, len(raw)/16)
	for i := range blocks {
		copy(blocks[i][:], raw[i*16:(i+1)*16])
	}
	return blocks, nil
}

// RestoreCard writes dump's data blocks back to a blank card using the
// key table's recovered keys, sector trailers last so an interrupted
// restore never leaves a sector permanently locked out with a half
// rewritten trailer (spec section 4, testable property 7's
// dump/restore round-trip).
func RestoreCard(dev *mfckey.Device, prof profile.Profile, blocks [][16]byte, table *keytable.Table) error {
	for s := 0; s < prof.Sectors(); s++ {
		entry := table.Get(s)
		if !entry.Found(keytable.A) {
			continue
		}
		key := [6]byte(entry.Key(keytable.A))
		first := prof.FirstBlockOf(s)
		last := first + prof.BlocksOf(s) - 1
		for b := first; b < last; b++ {
			if err := dev.WriteBlock(byte(b), mfckey.KeyTypeA, key, blocks[b]); err != nil {
				return err
			}
		}
	}
	for s := 0; s < prof.Sectors(); s++ {
		entry := table.Get(s)
		if !entry.Found(keytable.A) {
			continue
		}
		key := [6]byte(entry.Key(keytable.A))
		trailerBlock := byte(prof.FirstBlockOf(s) + prof.BlocksOf(s) - 1)
		if err := dev.WriteBlock(trailerBlock, mfckey.KeyTypeA, key, blocks[trailerBlock]); err != nil {
			return err
		}
	}
	return nil
}
