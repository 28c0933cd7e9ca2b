// SPDX-License-Identifier: MIT

/*
Package bitint provides power-of-2 helpers for FFT sizing. All functions
are constant time and allocation free.

	fft := bitint.PrevPowerOfTwo(48000)   // 32768
	ok := bitint.IsPowerOfTwo(windowSize)

PrevPowerOfTwo keeps only the highest set bit: bits.Len(48000) = 16 and
1<<15 = 32768.
*/
package bitint

import "math/bits"

// PrevPowerOfTwo returns the largest power of 2 <= size, or 0 for
// size <= 0.
func PrevPowerOfTwo(size int) int {
	if size <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// IsPowerOfTwo reports whether n is a positive power of 2. Powers of 2
// have exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
