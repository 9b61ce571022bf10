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

import "time"

// Option is a functional option for configuring a Device.
type Option func(*Device) error

// WithRetryConfig sets the retry configuration for the device.
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.config.RetryConfig = config
		return nil
	}
}

// WithTimeout sets the default timeout for device operations.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		d.config.Timeout = timeout
		return nil
	}
}

// WithMaxRetries sets the maximum number of attempts, the first one
// included, for idempotent device operations (Select, ReadBlock,
// WriteBlock, CheckKeysFast).
func WithMaxRetries(maxAttempts int) Option {
	return func(d *Device) error {
		if d.config.RetryConfig == nil {
			d.config.RetryConfig = DefaultRetryConfig()
		}
		d.config.RetryConfig.MaxAttempts = maxAttempts
		return nil
	}
}

// WithRetryBackoff sets the initial backoff duration for retries.
func WithRetryBackoff(initialBackoff time.Duration) Option {
	return func(d *Device) error {
		if d.config.RetryConfig == nil {
			d.config.RetryConfig = DefaultRetryConfig()
		}
		d.config.RetryConfig.InitialBackoff = initialBackoff
		return nil
	}
}
