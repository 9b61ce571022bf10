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

// Package logx is the engine's ambient logger: a thin, package-scoped
// debug gate in the same spirit as the teacher library's debugln/debugf
// helpers, factored into its own package so every attack and the
// orchestrator share one verbosity switch instead of duplicating a
// package-level bool.
//
// No third-party logging library appears anywhere in the retrieved
// example pack (the teacher gates a bare fmt.Fprintf on a bool; none of
// the other repos pull in zap/zerolog/logrus either), so this ambient
// concern is carried on the standard library rather than inventing a
// dependency the corpus never reaches for — see DESIGN.md.
package logx

import (
	"fmt"
	"os"
	"sync/atomic"
)

var verbose atomic.Bool

// SetVerbose toggles debug-level output, mirroring -v on the CLI.
func SetVerbose(v bool) { verbose.Store(v) }

// Verbose reports the current debug gate.
func Verbose() bool { return verbose.Load() }

// Debugf writes a debug line to stderr only when verbose output is on.
func Debugf(format string, args ...any) {
	if verbose.Load() {
		fmt.Fprintf(os.Stderr, "[debug] "+format+"\n", args...)
	}
}

// Infof always writes an informational line to stderr.
func Infof(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[info] "+format+"\n", args...)
}

// Warnf always writes a warning line to stderr.
func Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[warn] "+format+"\n", args...)
}

// Errorf always writes an error line to stderr.
func Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[error] "+format+"\n", args...)
}
