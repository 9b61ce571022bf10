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

// Package button sources the process-wide cancel signal from a physical
// GPIO abort button, alongside keyboard SIGINT, per spec section 5's
// "keyboard input or the device's physical button."
package button

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// pollInterval bounds how long WaitForEdge blocks between checks of
// ctx.Done(), so a cancelled context stops the watcher promptly even on
// platforms whose GPIO driver can't interrupt a pending edge wait.
const pollInterval = 250 * time.Millisecond

// Watcher polls a GPIO input pin and invokes a cancel function when it
// detects the configured edge, i.e. the button being pressed.
type Watcher struct {
	pin gpio.PinIO
}

// Open initializes the periph host (if not already done) and resolves
// pinName (e.g. "GPIO17") to an input pin pulled up and watching for a
// falling edge — a button wired between the pin and ground.
func Open(pinName string) (*Watcher, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("button: initializing periph host: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("button: no GPIO pin named %q", pinName)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("button: configuring pin %q as input: %w", pinName, err)
	}
	return &Watcher{pin: pin}, nil
}

// Watch blocks, polling for a button press, until either the press is
// detected (in which case it calls cancel and returns) or ctx is done.
func (w *Watcher) Watch(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if w.pin.WaitForEdge(pollInterval) {
			cancel()
			return
		}
	}
}
