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

package mfckey

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keyforge/mfckey/ckerr"
)

// DeviceConfig contains configuration options for the Device.
type DeviceConfig struct {
	// RetryConfig configures retry behavior for transport operations.
	RetryConfig *RetryConfig
	// Timeout is the default timeout for device operations. Spec
	// section 5 budgets 1.5-2.5s per command and 3s for nonce batches.
	Timeout time.Duration
}

// DefaultDeviceConfig returns the default device configuration.
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig: DefaultRetryConfig(),
		Timeout:     2 * time.Second,
	}
}

// Device wraps a Transport with the typed, higher-level operations the
// attacks in package attack and the orchestrator in package autopwn need.
// It is the mutex-protected singleton spec section 5 describes: at most
// one command is in flight, enforced here rather than trusted to the
// transport.
type Device struct {
	transport Transport
	config    *DeviceConfig
	mu        sync.Mutex
}

// New creates a Device wrapping transport, applying opts in order.
func New(transport Transport, opts ...Option) (*Device, error) {
	d := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if err := d.transport.SetTimeout(d.config.Timeout); err != nil {
		return nil, fmt.Errorf("setting initial timeout: %w", err)
	}
	return d, nil
}

func (d *Device) withRetry(op func() error) error {
	return RetryWithConfig(context.Background(), d.config.RetryConfig, op)
}

// IsRetryable reports whether a failed Device/Transport call is worth
// retrying. Only transport-level timeouts are; everything else (a wrong
// key, an aborted run, a malformed argument) is final.
func IsRetryable(err error) bool {
	return ckerr.IsRetryable(err)
}

// Select performs anticollision and returns the card's identity.
func (d *Device) Select() (CardID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var card CardID
	err := d.withRetry(func() error {
		var err error
		card, err = d.transport.Select()
		return err
	})
	return card, err
}

// Authenticate authenticates to block with the given key.
func (d *Device) Authenticate(block byte, keyType KeyType, key [6]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.Authenticate(block, keyType, key)
}

// ReadBlock authenticates then reads block.
func (d *Device) ReadBlock(block byte, keyType KeyType, key [6]byte) ([16]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var data [16]byte
	err := d.withRetry(func() error {
		var err error
		data, err = d.transport.ReadBlock(block, keyType, key)
		return err
	})
	return data, err
}

// WriteBlock authenticates then writes block.
func (d *Device) WriteBlock(block byte, keyType KeyType, key [6]byte, data [16]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.withRetry(func() error {
		return d.transport.WriteBlock(block, keyType, key, data)
	})
}

// CheckKeysFast runs one chunked bulk key trial round trip.
func (d *Device) CheckKeysFast(
	sectorMask []bool, firstChunk, lastChunk bool, strategy CheckStrategy, keys [][6]byte,
) (FastCheckResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result FastCheckResult
	err := d.withRetry(func() error {
		var err error
		result, err = d.transport.CheckKeysFast(sectorMask, firstChunk, lastChunk, strategy, keys)
		return err
	})
	return result, err
}

// AcquireNonces streams encrypted nonces for the hardnested/nested attacks.
// It holds the device lock until the transport closes its sample channel,
// so callers must drain the returned sample channel to completion before
// issuing another Device call.
func (d *Device) AcquireNonces(
	knownBlock byte, knownKeyType KeyType, knownKey [6]byte,
	targetBlock byte, targetKeyType KeyType, slow bool,
) (<-chan NonceSample, <-chan error) {
	d.mu.Lock()
	samples, errs := d.transport.AcquireNonces(knownBlock, knownKeyType, knownKey, targetBlock, targetKeyType, slow)

	out := make(chan NonceSample, 32)
	outErr := make(chan error, 1)
	go func() {
		defer d.mu.Unlock()
		defer close(out)
		for s := range samples {
			out <- s
		}
		select {
		case err := <-errs:
			outErr <- err
		default:
		}
		close(outErr)
	}()
	return out, outErr
}

// EmulatorGetMem reads the device's emulator memory image.
func (d *Device) EmulatorGetMem() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.EmulatorGetMem()
}

// EmulatorSetMem writes the device's emulator memory image.
func (d *Device) EmulatorSetMem(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.EmulatorSetMem(data)
}

// EmulatorFillFromCard has the device copy sectorCount sectors of the
// currently selected card directly into its own emulator memory.
func (d *Device) EmulatorFillFromCard(sectorCount int, keyType KeyType, key [6]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.EmulatorFillFromCard(sectorCount, keyType, key)
}

// DetectPRNGStatic reports whether the tag's nonce is constant.
func (d *Device) DetectPRNGStatic() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.DetectPRNGStatic()
}

// DetectPRNGWeak classifies the tag's PRNG once it's known not to be static.
func (d *Device) DetectPRNGWeak() (PRNGClass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.DetectPRNGWeak()
}

// SetModulation configures field modulation depth.
func (d *Device) SetModulation(depth int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.SetModulation(depth)
}

// SetTimeout changes the per-command timeout on both Device and its
// underlying transport.
func (d *Device) SetTimeout(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.Timeout = timeout
	return d.transport.SetTimeout(timeout)
}

// SetRetryConfig replaces the retry configuration used by Device's
// idempotent operations (Select, ReadBlock, WriteBlock, CheckKeysFast).
// Authenticate and AcquireNonces are never retried here: a wrong key or a
// mid-acquisition timeout must surface to the caller so attacks can make
// their own fallback decision, per spec section 7.
func (d *Device) SetRetryConfig(config *RetryConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.RetryConfig = config
}

// Close releases the underlying transport.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.Close()
}
