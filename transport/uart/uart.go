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

// Package uart talks to a serial-attached PN532-class reader front-end,
// framing each command the way internal/frame expects and decoding its
// InDataExchange responses into mfckey's Transport operations. It is the
// engine's reference physical transport; a virtual card stands in for it
// in tests.
package uart

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/keyforge/mfckey"
	"github.com/keyforge/mfckey/ckerr"
	"github.com/keyforge/mfckey/internal/frame"
)

// Reader-side command codes, issued as the data byte of an
// InDataExchange frame. These model a PN532-class reader extended with
// the bulk/nested primitives the device's firmware needs to support
// CheckKeysFast and AcquireNonces without a host round trip per key or
// per nonce.
const (
	cmdSelect         = 0x01
	cmdAuthenticate   = 0x02
	cmdReadBlock      = 0x03
	cmdWriteBlock     = 0x04
	cmdCheckKeysFast  = 0x05
	cmdAcquireNonces  = 0x06
	cmdEmulatorGet    = 0x07
	cmdEmulatorSet    = 0x08
	cmdEmulatorFill   = 0x09
	cmdDetectStatic   = 0x0A
	cmdDetectWeak     = 0x0B
	cmdSetModulation  = 0x0C
	defaultBaud       = 115200
	defaultReadBufCap = 1024
)

// Transport implements mfckey.Transport over a serial link to a
// PN532-class reader.
type Transport struct {
	mu       sync.Mutex
	port     serial.Port
	portName string
	timeout  time.Duration
}

// Open opens the serial port at portName and returns a ready Transport.
func Open(portName string) (*Transport, error) {
	mode := &serial.Mode{BaudRate: defaultBaud}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("uart: open %s: %w", portName, err)
	}
	t := &Transport{port: port, portName: portName, timeout: 2 * time.Second}
	if err := port.SetReadTimeout(t.timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("uart: set read timeout: %w", err)
	}
	return t, nil
}

// IsConnected reports whether the serial port was successfully opened.
func (t *Transport) IsConnected() bool { return t.port != nil }

func buildFrame(data []byte) []byte {
	tfi := byte(frame.HostToReader)
	lcs := frame.CalculateLengthChecksum(byte(len(data) + 1))
	dcs := frame.CalculateDataChecksum(tfi, data)

	buf := make([]byte, 0, frame.MinFrameLength+len(data))
	buf = append(buf, frame.Preamble, frame.StartCode1, frame.StartCode2)
	buf = append(buf, byte(len(data)+1), lcs, tfi)
	buf = append(buf, data...)
	buf = append(buf, dcs, frame.Postamble)
	return buf
}

// parseFrame locates a [Preamble StartCode1 StartCode2 LEN LCS TFI
// data... DCS Postamble] frame inside buf and returns its data payload
// (TFI and DCS stripped). FindFrameStart's two-byte scan looks for
// Preamble followed by StartCode1 (both 0x00); ValidateFrameLength then
// expects to be handed the StartCode2 index, two past what
// FindFrameStart returned.
func parseFrame(buf []byte) ([]byte, error) {
	off, retry := frame.FindFrameStart(buf, len(buf), frame.StartCode1)
	if off < 0 {
		if retry {
			return nil, fmt.Errorf("uart: incomplete frame: %w", ckerr.ErrTimeout)
		}
		return nil, fmt.Errorf("uart: %w", ckerr.ErrSelect)
	}
	dataLen, shouldRetry, err := frame.ValidateFrameLength(buf, off+2, len(buf), "parseFrame", "")
	if err != nil {
		return nil, err
	}
	if shouldRetry {
		return nil, fmt.Errorf("uart: bad length checksum: %w", ckerr.ErrSelect)
	}
	if dataLen < 1 {
		return nil, fmt.Errorf("uart: empty payload: %w", ckerr.ErrSelect)
	}
	start := off + 5 // preamble, start1, start2, len, lcs -> tfi begins here
	end := start + dataLen
	if end+1 > len(buf) {
		return nil, fmt.Errorf("uart: truncated frame: %w", ckerr.ErrTimeout)
	}
	if frame.ValidateFrameChecksum(buf, start, end+1) {
		return nil, fmt.Errorf("uart: bad data checksum: %w", ckerr.ErrSelect)
	}
	// first data byte is TFI, rest is the payload
	return buf[start+1 : end], nil
}

// exchange sends a reader command with args and returns its response
// payload, holding the port lock for the whole round trip since the
// device only ever has one command in flight.
func (t *Transport) exchange(cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := append([]byte{cmd}, args...)
	if _, err := t.port.Write(buildFrame(data)); err != nil {
		return nil, fmt.Errorf("uart: write: %w", err)
	}

	buf := make([]byte, defaultReadBufCap)
	n, err := t.port.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("uart: read: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("uart: no response: %w", ckerr.ErrTimeout)
	}
	return parseFrame(buf[:n])
}

func (t *Transport) Select() (mfckey.CardID, error) {
	resp, err := t.exchange(cmdSelect, nil)
	if err != nil {
		return mfckey.CardID{}, err
	}
	if len(resp) < 3 {
		return mfckey.CardID{}, fmt.Errorf("uart: short select response: %w", ckerr.ErrSelect)
	}
	sak := resp[0]
	atqa := [2]byte{resp[1], resp[2]}
	uid := append([]byte(nil), resp[3:]...)
	return mfckey.CardID{UID: uid, ATQA: atqa, SAK: sak}, nil
}

func (t *Transport) Authenticate(block byte, keyType mfckey.KeyType, key [6]byte) error {
	args := append([]byte{block, byte(keyType)}, key[:]...)
	resp, err := t.exchange(cmdAuthenticate, args)
	if err != nil {
		return err
	}
	if len(resp) < 1 || resp[0] != 0 {
		return ckerr.ErrAuthFail
	}
	return nil
}

func (t *Transport) ReadBlock(block byte, keyType mfckey.KeyType, key [6]byte) ([16]byte, error) {
	args := append([]byte{block, byte(keyType)}, key[:]...)
	resp, err := t.exchange(cmdReadBlock, args)
	if err != nil {
		return [16]byte{}, err
	}
	if len(resp) < 1 || resp[0] != 0 {
		return [16]byte{}, ckerr.ErrAuthFail
	}
	if len(resp) < 17 {
		return [16]byte{}, fmt.Errorf("uart: short read response: %w", ckerr.ErrSelect)
	}
	var out [16]byte
	copy(out[:], resp[1:17])
	return out, nil
}

func (t *Transport) WriteBlock(block byte, keyType mfckey.KeyType, key [6]byte, data [16]byte) error {
	args := append([]byte{block, byte(keyType)}, key[:]...)
	args = append(args, data[:]...)
	resp, err := t.exchange(cmdWriteBlock, args)
	if err != nil {
		return err
	}
	if len(resp) < 1 || resp[0] != 0 {
		return ckerr.ErrAuthFail
	}
	return nil
}

func (t *Transport) CheckKeysFast(
	sectorMask []bool, firstChunk, lastChunk bool,
	strategy mfckey.CheckStrategy, keys [][6]byte,
) (mfckey.FastCheckResult, error) {
	args := encodeSectorMask(sectorMask)
	args = append(args, boolByte(firstChunk), boolByte(lastChunk), byte(strategy))
	args = append(args, byte(len(keys)))
	for _, k := range keys {
		args = append(args, k[:]...)
	}
	resp, err := t.exchange(cmdCheckKeysFast, args)
	if err != nil {
		return mfckey.FastCheckResult{}, err
	}
	return decodeFastCheckResult(resp, len(sectorMask))
}

func encodeSectorMask(mask []bool) []byte {
	out := make([]byte, (len(mask)+7)/8)
	for i, set := range mask {
		if set {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return append([]byte{byte(len(mask))}, out...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func decodeFastCheckResult(resp []byte, sectors int) (mfckey.FastCheckResult, error) {
	res := mfckey.FastCheckResult{
		FoundA: make([]bool, sectors),
		FoundB: make([]bool, sectors),
		KeysA:  make([][6]byte, sectors),
		KeysB:  make([][6]byte, sectors),
	}
	r := bytes.NewReader(resp)
	for s := 0; s < sectors; s++ {
		var flags byte
		if b, err := r.ReadByte(); err == nil {
			flags = b
		} else {
			break
		}
		if flags&1 != 0 {
			res.FoundA[s] = true
			_, _ = r.Read(res.KeysA[s][:])
		}
		if flags&2 != 0 {
			res.FoundB[s] = true
			_, _ = r.Read(res.KeysB[s][:])
		}
	}
	return res, nil
}

func (t *Transport) AcquireNonces(
	knownBlock byte, knownKeyType mfckey.KeyType, knownKey [6]byte,
	targetBlock byte, targetKeyType mfckey.KeyType, slow bool,
) (<-chan mfckey.NonceSample, <-chan error) {
	samples := make(chan mfckey.NonceSample, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(samples)
		args := []byte{knownBlock, byte(knownKeyType)}
		args = append(args, knownKey[:]...)
		args = append(args, targetBlock, byte(targetKeyType), boolByte(slow))
		resp, err := t.exchange(cmdAcquireNonces, args)
		if err != nil {
			errs <- err
			return
		}
		const sampleLen = 4 + 4 + 4 // CUID + NtEnc + parity(4 packed as 4 bytes)
		for off := 0; off+sampleLen <= len(resp); off += sampleLen {
			samples <- mfckey.NonceSample{
				CUID:          be32(resp[off : off+4]),
				NtEnc:         be32(resp[off+4 : off+8]),
				Parity:        [4]byte(resp[off+8 : off+12]),
				TargetBlock:   targetBlock,
				TargetKeyType: targetKeyType,
			}
		}
	}()

	return samples, errs
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (t *Transport) EmulatorGetMem() ([]byte, error) {
	return t.exchange(cmdEmulatorGet, nil)
}

func (t *Transport) EmulatorSetMem(data []byte) error {
	_, err := t.exchange(cmdEmulatorSet, data)
	return err
}

func (t *Transport) EmulatorFillFromCard(sectorCount int, keyType mfckey.KeyType, key [6]byte) error {
	args := append([]byte{byte(sectorCount), byte(keyType)}, key[:]...)
	resp, err := t.exchange(cmdEmulatorFill, args)
	if err != nil {
		return err
	}
	if len(resp) < 1 || resp[0] != 0 {
		return ckerr.ErrAuthFail
	}
	return nil
}

func (t *Transport) DetectPRNGStatic() (bool, error) {
	resp, err := t.exchange(cmdDetectStatic, nil)
	if err != nil {
		return false, err
	}
	return len(resp) > 0 && resp[0] != 0, nil
}

func (t *Transport) DetectPRNGWeak() (mfckey.PRNGClass, error) {
	resp, err := t.exchange(cmdDetectWeak, nil)
	if err != nil {
		return mfckey.PRNGUnknown, err
	}
	if len(resp) < 1 {
		return mfckey.PRNGUnknown, fmt.Errorf("uart: empty PRNG class response: %w", ckerr.ErrSelect)
	}
	switch resp[0] {
	case 1:
		return mfckey.PRNGStatic, nil
	case 2:
		return mfckey.PRNGWeak, nil
	case 3:
		return mfckey.PRNGHardened, nil
	default:
		return mfckey.PRNGUnknown, nil
	}
}

func (t *Transport) SetModulation(depth int) error {
	_, err := t.exchange(cmdSetModulation, []byte{byte(depth)})
	return err
}

func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return t.port.SetReadTimeout(timeout)
}

func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}
