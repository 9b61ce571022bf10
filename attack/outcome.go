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

// Package attack implements the dictionary, darkside, nested,
// static-nested and key-brute attacks against a MIFARE Classic sector,
// plus the legacy per-sector key check. Each attack returns an Outcome
// instead of a sentinel return code, so the orchestrator's fallback
// logic never has to pattern-match an error string.
package attack

import (
	"fmt"

	"github.com/keyforge/mfckey/ckerr"
	"github.com/keyforge/mfckey/keytable"
)

// Outcome is the sum type every attack in this package returns: exactly
// one of Key, NotVulnerable, Aborted or Err is meaningful, selected by
// Status.
type Outcome struct {
	Status OutcomeStatus
	Key    keytable.Key
	Why    ckerr.NotVulnerableWhy
	Err    error
}

// OutcomeStatus discriminates an Outcome.
type OutcomeStatus int

const (
	StatusFound OutcomeStatus = iota
	StatusNotVulnerable
	StatusAborted
	StatusTransportError
)

// Found builds a successful Outcome.
func Found(k keytable.Key) Outcome { return Outcome{Status: StatusFound, Key: k} }

// NotVulnerable builds an Outcome reporting the attack does not apply.
func NotVulnerable(why ckerr.NotVulnerableWhy) Outcome {
	return Outcome{Status: StatusNotVulnerable, Why: why}
}

// Aborted builds an Outcome reporting a user cancellation.
func Aborted() Outcome { return Outcome{Status: StatusAborted} }

// TransportErr wraps a transport-level failure.
func TransportErr(err error) Outcome { return Outcome{Status: StatusTransportError, Err: err} }

func (o Outcome) String() string {
	switch o.Status {
	case StatusFound:
		return fmt.Sprintf("found(%s)", o.Key)
	case StatusNotVulnerable:
		return fmt.Sprintf("not vulnerable: %s", o.Why)
	case StatusAborted:
		return "aborted"
	default:
		return fmt.Sprintf("transport error: %v", o.Err)
	}
}
