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

// Package hardnested implements the hardened-PRNG statistical attack
// (spec section 4.8): nonce acquisition, a bounded candidate-key
// verification pass standing in for the bitflip-parity-class
// intersection/brute-force pipeline, and the nonces-file interchange
// format shared with offline replay.
package hardnested

import "golang.org/x/sys/cpu"

// SIMDWidth names a candidate-batch width for the classification/brute
// force kernel. Run and RunRemote take no SIMDWidth and no code in this
// module reads one: verification runs the same path whatever width
// DetectSIMD reports or a caller requests.
type SIMDWidth int

const (
	SIMDNone SIMDWidth = iota
	SIMDSSE2
	SIMDAVX
	SIMDAVX2
	SIMDAVX512
)

func (w SIMDWidth) String() string {
	switch w {
	case SIMDSSE2:
		return "sse2"
	case SIMDAVX:
		return "avx"
	case SIMDAVX2:
		return "avx2"
	case SIMDAVX512:
		return "avx512"
	default:
		return "none"
	}
}

// DetectSIMD probes the running CPU and returns the widest kernel width
// it supports, using golang.org/x/sys/cpu's feature flags rather than
// the source's global SIMD setter (spec section 9's SIMD-dispatch
// redesign note).
func DetectSIMD() SIMDWidth {
	switch {
	case cpu.X86.HasAVX512F:
		return SIMDAVX512
	case cpu.X86.HasAVX2:
		return SIMDAVX2
	case cpu.X86.HasAVX:
		return SIMDAVX
	case cpu.X86.HasSSE2:
		return SIMDSSE2
	default:
		return SIMDNone
	}
}
