// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-2 helpers used to size FFT buffers.

Both functions are O(1), allocate nothing and are safe to call from an audio
callback.

	size := bitint.NextPowerOfTwo(960) // 1024: a 20ms buffer at 48kHz
	ok := bitint.IsPowerOfTwo(size)

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of 2 are preserved: for 8, Len(7) = 3 and 1<<3 = 8, while Len(8)
would give 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Zero and negative
// sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo checks if n is a power of 2. A power of 2 has exactly one bit
// set, so clearing its lowest set bit leaves zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
