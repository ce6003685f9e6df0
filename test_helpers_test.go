package radixscan

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
	"testing"

	"github.com/tamirms/radixscan/device"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

// openTestDevice opens a device that is closed, and checked for leaked
// buffers, when the test ends.
func openTestDevice(t testing.TB, opts ...device.Option) *device.Device {
	t.Helper()
	dev, err := device.Open(opts...)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	t.Cleanup(func() {
		if err := dev.Close(); err != nil {
			t.Errorf("device.Close: %v", err)
		}
	})
	return dev
}

// randomUint32s returns n values below limit (limit 0 means the full range).
func randomUint32s(rng *rand.Rand, n int, limit uint32) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		if limit == 0 {
			out[i] = rng.Uint32()
		} else {
			out[i] = rng.Uint32N(limit)
		}
	}
	return out
}

func randomUint64s(rng *rand.Rand, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = rng.Uint64()
	}
	return out
}

// uploadNew allocates a buffer holding data. The buffer is closed when the
// test ends.
func uploadNew[T device.Element](t testing.TB, dev *device.Device, data []T) *device.Buffer[T] {
	t.Helper()
	buf, err := device.Alloc[T](dev, len(data))
	if err != nil {
		t.Fatalf("Alloc(%d): %v", len(data), err)
	}
	t.Cleanup(func() { _ = buf.Close() })
	if err := buf.Upload(data); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return buf
}

func download[T device.Element](t testing.TB, buf *device.Buffer[T]) []T {
	t.Helper()
	out := make([]T, buf.Len())
	if err := buf.Download(out); err != nil {
		t.Fatalf("Download: %v", err)
	}
	return out
}

// sequentialScan is the reference prefix sum.
func sequentialScan[T Number](in []T, inclusive bool) []T {
	out := make([]T, len(in))
	var acc T
	for i, v := range in {
		if inclusive {
			acc += v
			out[i] = acc
		} else {
			out[i] = acc
			acc += v
		}
	}
	return out
}

// scanConfigs lists every block strategy with a small cohort so that
// recursion is reached with modest inputs.
func scanConfigs() []struct {
	name string
	opts []Option
} {
	return []struct {
		name string
		opts []Option
	}{
		{"naive", []Option{WithAlgorithm(AlgoNaive), WithCohortSize(8)}},
		{"work-efficient", []Option{WithAlgorithm(AlgoWorkEfficient), WithCohortSize(4)}},
		{"work-efficient-no-banks", []Option{WithAlgorithm(AlgoWorkEfficient), WithCohortSize(4), WithBankConflictAvoidance(false)}},
		{"work-efficient-narrow-banks", []Option{WithAlgorithm(AlgoWorkEfficient), WithCohortSize(16), WithNumBanks(4)}},
		{"vectorized", []Option{WithAlgorithm(AlgoVectorized), WithCohortSize(4), WithVectorWidth(2)}},
		{"vectorized-wide", []Option{WithAlgorithm(AlgoVectorized), WithCohortSize(2), WithVectorWidth(4), WithNumBanks(2)}},
	}
}

