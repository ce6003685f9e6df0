package main

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// generate returns n values derived from the xxh3 hash of each index under
// seed, so a run is reproducible from (n, seed) alone.
func generate[T any](n int, seed uint64, conv func(h uint64) T) []T {
	out := make([]T, n)
	var buf [8]byte
	for i := range out {
		binary.LittleEndian.PutUint64(buf[:], uint64(i))
		out[i] = conv(xxh3.HashSeed(buf[:], seed))
	}
	return out
}

// unitFloat maps a hash to [0, 1).
func unitFloat(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

// bounded maps a hash to [0, limit). A zero limit keeps the full range.
func bounded(h, limit uint64) uint64 {
	if limit == 0 {
		return h
	}
	return h % limit
}
