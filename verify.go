package radixscan

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/tamirms/radixscan/device"
	scanerrors "github.com/tamirms/radixscan/errors"
)

// VerifyScan checks output against a sequential scan of input. Integer
// results must match exactly. Floating-point results may differ from the
// sequential order of additions by a small relative error.
func VerifyScan[T Number](input, output []T, inclusive bool) error {
	if len(input) != len(output) {
		return fmt.Errorf("%w: %d inputs, %d outputs", scanerrors.ErrValidationFailed, len(input), len(output))
	}
	var acc, magnitude T
	for i, v := range input {
		want := acc
		if inclusive {
			want += v
		}
		if !scanEqual(output[i], want, magnitude+abs(v)) {
			return fmt.Errorf("%w: scan index %d: got %v, want %v", scanerrors.ErrValidationFailed, i, output[i], want)
		}
		acc += v
		magnitude += abs(v)
	}
	return nil
}

func abs[T Number](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

func scanEqual[T Number](got, want, magnitude T) bool {
	if got == want {
		return true
	}
	switch any(got).(type) {
	case float32:
		return math.Abs(float64(got-want)) <= 1e-4*math.Max(1, float64(magnitude))
	case float64:
		return math.Abs(float64(got-want)) <= 1e-9*math.Max(1, float64(magnitude))
	}
	return false
}

// VerifySorted checks output against a stable sort of input by the low
// keyWidthBits bits. Keys that agree in those bits must keep their input
// order, so the full keys are compared.
func VerifySorted[K Key](input, output []K, keyWidthBits int) error {
	if len(input) != len(output) {
		return fmt.Errorf("%w: %d inputs, %d outputs", scanerrors.ErrValidationFailed, len(input), len(output))
	}
	mask := widthMask(keyWidthBits)
	want := slices.Clone(input)
	slices.SortStableFunc(want, func(a, b K) int {
		return cmp.Compare(uint64(a)&mask, uint64(b)&mask)
	})
	for i := range want {
		if output[i] != want[i] {
			return fmt.Errorf("%w: sort index %d: got %v, want %v", scanerrors.ErrValidationFailed, i, output[i], want[i])
		}
	}
	return nil
}

// VerifySortedPairs is VerifySorted for key/value pairs.
func VerifySortedPairs[K Key](inKeys []K, inVals []uint32, outKeys []K, outVals []uint32, keyWidthBits int) error {
	n := len(inKeys)
	if len(inVals) != n || len(outKeys) != n || len(outVals) != n {
		return fmt.Errorf("%w: pair lengths %d/%d in, %d/%d out",
			scanerrors.ErrValidationFailed, len(inKeys), len(inVals), len(outKeys), len(outVals))
	}
	type pair struct {
		k K
		v uint32
	}
	mask := widthMask(keyWidthBits)
	want := make([]pair, n)
	for i := range n {
		want[i] = pair{inKeys[i], inVals[i]}
	}
	slices.SortStableFunc(want, func(a, b pair) int {
		return cmp.Compare(uint64(a.k)&mask, uint64(b.k)&mask)
	})
	for i, p := range want {
		if outKeys[i] != p.k || outVals[i] != p.v {
			return fmt.Errorf("%w: pair index %d: got (%v, %d), want (%v, %d)",
				scanerrors.ErrValidationFailed, i, outKeys[i], outVals[i], p.k, p.v)
		}
	}
	return nil
}

func widthMask(keyWidthBits int) uint64 {
	if keyWidthBits >= 64 {
		return math.MaxUint64
	}
	return 1<<keyWidthBits - 1
}

// Checksum returns the xxHash64 of data encoded little-endian, so results
// can be compared across runs and machines without keeping the arrays.
func Checksum[T device.Element](data []T) uint64 {
	const chunk = 4096
	d := xxhash.New()
	var buf []byte
	for len(data) > 0 {
		m := min(chunk, len(data))
		buf, _ = binary.Append(buf[:0], binary.LittleEndian, data[:m])
		_, _ = d.Write(buf)
		data = data[m:]
	}
	return d.Sum64()
}
