// Package bits provides integer helpers for block geometry.
package bits

import "math/bits"

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns floor(log2(n)) for n > 0.
func Log2(n int) int {
	return bits.Len(uint(n)) - 1
}

// CeilDiv returns ceil(a / b) for a >= 0, b > 0.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}

// RoundUp rounds n up to the next multiple of m.
func RoundUp(n, m int) int {
	return CeilDiv(n, m) * m
}

// Levels returns how many recursion levels a scan of n elements with blocks of
// blockElems elements produces before a single block suffices. It is the
// number of intermediate sums arrays that are live at once.
func Levels(n, blockElems int) int {
	levels := 0
	for n > blockElems {
		n = CeilDiv(n, blockElems)
		levels++
	}
	return levels
}
