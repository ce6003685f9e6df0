package radixscan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/tamirms/radixscan/device"
	scanerrors "github.com/tamirms/radixscan/errors"
)

// sortConfigs covers both layouts with geometries where buckets outnumber
// workers and where workers outnumber buckets.
func sortConfigs() []struct {
	name string
	opts []Option
} {
	return []struct {
		name string
		opts []Option
	}{
		{"per-block", []Option{WithCohortSize(4), WithKeysPerWorker(2), WithRadixBits(4)}},
		{"per-block-wide-radix", []Option{WithCohortSize(2), WithKeysPerWorker(4), WithRadixBits(8)}},
		{"per-block-many-workers", []Option{WithCohortSize(32), WithKeysPerWorker(1), WithRadixBits(2)}},
		{"per-worker", []Option{WithCohortSize(4), WithKeysPerWorker(2), WithRadixBits(4), WithHistogramLayout(LayoutPerWorker)}},
		{"per-worker-wide-radix", []Option{WithCohortSize(4), WithKeysPerWorker(8), WithRadixBits(8), WithHistogramLayout(LayoutPerWorker)}},
		{"per-worker-naive-scan", []Option{WithCohortSize(4), WithKeysPerWorker(4), WithRadixBits(2), WithHistogramLayout(LayoutPerWorker), WithAlgorithm(AlgoNaive)}},
	}
}

// =============================================================================
// Correctness
// =============================================================================

func TestSortStabilityKnownValues(t *testing.T) {
	keys := []uint16{5, 3, 5, 1, 2, 3}
	for _, layout := range []HistogramLayout{LayoutPerBlock, LayoutPerWorker} {
		t.Run(layout.String(), func(t *testing.T) {
			dev := openTestDevice(t)
			s, err := NewSorter[uint16](dev, WithRadixBits(2), WithCohortSize(2), WithKeysPerWorker(2), WithHistogramLayout(layout))
			if err != nil {
				t.Fatal(err)
			}

			values := []uint32{0, 1, 2, 3, 4, 5}
			gotKeys, gotVals, err := s.SortPairsSlice(t.Context(), keys, values, 4)
			if err != nil {
				t.Fatal(err)
			}
			if want := []uint16{1, 2, 3, 3, 5, 5}; !slices.Equal(gotKeys, want) {
				t.Errorf("keys: got %v, want %v", gotKeys, want)
			}
			if want := []uint32{3, 4, 1, 5, 0, 2}; !slices.Equal(gotVals, want) {
				t.Errorf("values: got %v, want %v", gotVals, want)
			}

			// Tag each key with its index above the sorted bits. Only the
			// low 4 bits are sorted, so the tags must come out in input
			// order within equal keys.
			tagged := make([]uint16, len(keys))
			for i, k := range keys {
				tagged[i] = k | uint16(i)<<4
			}
			got, err := s.SortSlice(t.Context(), tagged, 4)
			if err != nil {
				t.Fatal(err)
			}
			want := []uint16{1 | 3<<4, 2 | 4<<4, 3 | 1<<4, 3 | 5<<4, 5 | 0<<4, 5 | 2<<4}
			if !slices.Equal(got, want) {
				t.Errorf("tagged: got %v, want %v", got, want)
			}
		})
	}
}

func TestSortLengths(t *testing.T) {
	for _, cfg := range sortConfigs() {
		t.Run(cfg.name, func(t *testing.T) {
			dev := openTestDevice(t)
			s, err := NewSorter[uint32](dev, cfg.opts...)
			if err != nil {
				t.Fatal(err)
			}
			b := s.BlockElems()
			rng := newTestRNG(t)
			for _, n := range []int{1, 2, b - 1, b, b + 1, 3*b + 1, 1000, 2053} {
				input := randomUint32s(rng, n, 0)
				got, err := s.SortSlice(t.Context(), input, 32)
				if err != nil {
					t.Fatalf("n=%d: %v", n, err)
				}
				if err := VerifySorted(input, got, 32); err != nil {
					t.Fatalf("n=%d: %v", n, err)
				}
			}
			if live := dev.Stats().LiveBuffers; live != 0 {
				t.Errorf("LiveBuffers = %d after sorts, want 0", live)
			}
		})
	}
}

func TestSortPairs(t *testing.T) {
	for _, cfg := range sortConfigs() {
		t.Run(cfg.name, func(t *testing.T) {
			dev := openTestDevice(t)
			s, err := NewSorter[uint32](dev, cfg.opts...)
			if err != nil {
				t.Fatal(err)
			}
			rng := newTestRNG(t)
			// Few distinct keys so stability is exercised.
			keys := randomUint32s(rng, 777, 16)
			values := make([]uint32, len(keys))
			for i := range values {
				values[i] = uint32(i)
			}
			gotKeys, gotVals, err := s.SortPairsSlice(t.Context(), keys, values, 8)
			if err != nil {
				t.Fatal(err)
			}
			if err := VerifySortedPairs(keys, values, gotKeys, gotVals, 8); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSortKeyTypes(t *testing.T) {
	rng := newTestRNG(t)
	dev := openTestDevice(t)
	opts := []Option{WithCohortSize(8), WithKeysPerWorker(2), WithRadixBits(8)}

	t.Run("uint8", func(t *testing.T) {
		s, err := NewSorter[uint8](dev, opts...)
		if err != nil {
			t.Fatal(err)
		}
		input := make([]uint8, 300)
		for i := range input {
			input[i] = uint8(rng.Uint32())
		}
		got, err := s.SortSlice(t.Context(), input, 8)
		if err != nil {
			t.Fatal(err)
		}
		if err := VerifySorted(input, got, 8); err != nil {
			t.Error(err)
		}
	})

	t.Run("uint64", func(t *testing.T) {
		s, err := NewSorter[uint64](dev, opts...)
		if err != nil {
			t.Fatal(err)
		}
		input := randomUint64s(rng, 500)
		for _, width := range []int{8, 16, 40, 64} {
			got, err := s.SortSlice(t.Context(), input, width)
			if err != nil {
				t.Fatalf("width %d: %v", width, err)
			}
			if err := VerifySorted(input, got, width); err != nil {
				t.Errorf("width %d: %v", width, err)
			}
		}
	})
}

func TestSortKeysEqualToPadding(t *testing.T) {
	dev := openTestDevice(t)
	s, err := NewSorter[uint32](dev, WithCohortSize(4), WithKeysPerWorker(2))
	if err != nil {
		t.Fatal(err)
	}
	input := []uint32{math.MaxUint32, 7, math.MaxUint32, 0, 3, math.MaxUint32, 1, 2, 9, 4, math.MaxUint32}
	got, err := s.SortSlice(t.Context(), input, 32)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0, 1, 2, 3, 4, 7, 9, math.MaxUint32, math.MaxUint32, math.MaxUint32, math.MaxUint32}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSortIdempotent(t *testing.T) {
	rng := newTestRNG(t)
	dev := openTestDevice(t)
	s, err := NewSorter[uint32](dev, WithCohortSize(8), WithKeysPerWorker(2))
	if err != nil {
		t.Fatal(err)
	}
	input := randomUint32s(rng, 1234, 1<<12)
	once, err := s.SortSlice(t.Context(), input, 12)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := s.SortSlice(t.Context(), once, 12)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(once, twice) {
		t.Error("sorting sorted keys changed them")
	}
	if Checksum(once) != Checksum(twice) {
		t.Error("checksums differ")
	}
}

// =============================================================================
// Buffer ownership
// =============================================================================

func TestSortBufferOwnership(t *testing.T) {
	dev := openTestDevice(t)
	s, err := NewSorter[uint32](dev, WithCohortSize(4), WithKeysPerWorker(2), WithRadixBits(4))
	if err != nil {
		t.Fatal(err)
	}
	input := []uint32{9, 3, 7, 1, 8, 2, 6, 0, 15, 4, 11, 5, 14, 10, 13, 12}

	t.Run("even passes end in the input", func(t *testing.T) {
		keys := uploadNew(t, dev, input)
		out, err := s.Sort(t.Context(), keys, len(input), 8)
		if err != nil {
			t.Fatal(err)
		}
		if out != keys {
			t.Error("two passes over a whole block should return the input buffer")
		}
		if err := VerifySorted(input, download(t, out), 8); err != nil {
			t.Error(err)
		}
		if live := dev.Stats().LiveBuffers; live != 1 {
			t.Errorf("LiveBuffers = %d, want 1", live)
		}
	})

	t.Run("odd passes end in scratch", func(t *testing.T) {
		keys := uploadNew(t, dev, input)
		out, err := s.Sort(t.Context(), keys, len(input), 4)
		if err != nil {
			t.Fatal(err)
		}
		defer out.Close()
		if out == keys {
			t.Error("one pass should return a new buffer")
		}
		if err := VerifySorted(input, download(t, out), 4); err != nil {
			t.Error(err)
		}
	})

	t.Run("three passes leave the input partly sorted", func(t *testing.T) {
		rng := newTestRNG(t)
		wide := randomUint32s(rng, len(input), 1<<12)
		keys := uploadNew(t, dev, wide)
		out, err := s.Sort(t.Context(), keys, len(wide), 12)
		if err != nil {
			t.Fatal(err)
		}
		defer out.Close()
		if out == keys {
			t.Fatal("three passes should return a new buffer")
		}
		if err := VerifySorted(wide, download(t, out), 12); err != nil {
			t.Error(err)
		}
		// The second pass wrote into keys, so it holds the stable order
		// by the low two digits.
		if err := VerifySorted(wide, download(t, keys), 8); err != nil {
			t.Errorf("input after three passes: %v", err)
		}
	})

	t.Run("padded input is untouched", func(t *testing.T) {
		keys := uploadNew(t, dev, input[:13])
		out, err := s.Sort(t.Context(), keys, 13, 8)
		if err != nil {
			t.Fatal(err)
		}
		defer out.Close()
		if out.Len() != 13 {
			t.Errorf("result Len = %d, want 13", out.Len())
		}
		if got := download(t, keys); !slices.Equal(got, input[:13]) {
			t.Error("Sort modified an input that needed padding")
		}
	})
}

func TestSortZeroLength(t *testing.T) {
	dev := openTestDevice(t)
	s, err := NewSorter[uint32](dev)
	if err != nil {
		t.Fatal(err)
	}
	keys, vals, err := s.SortPairsSlice(t.Context(), nil, nil, 32)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 || len(vals) != 0 {
		t.Errorf("got %d keys, %d values", len(keys), len(vals))
	}
}

// =============================================================================
// Failures
// =============================================================================

func TestSortDispatchFailureReleasesBuffers(t *testing.T) {
	kernels := []string{
		"copy",
		"fill",
		"radix-histogram-per-block",
		"scan-block-work-efficient",
		"scan-add-offsets",
		"radix-scatter-per-block",
	}
	for _, kernel := range kernels {
		t.Run(kernel, func(t *testing.T) {
			dev := openTestDevice(t, device.WithBeforeDispatch(func(l device.Launch) error {
				if l.Name == kernel {
					return errors.New("injected")
				}
				return nil
			}))
			s, err := NewSorter[uint32](dev, WithCohortSize(4), WithKeysPerWorker(2))
			if err != nil {
				t.Fatal(err)
			}
			keys := uploadNew(t, dev, make([]uint32, 201))
			values := uploadNew(t, dev, make([]uint32, 201))

			_, _, err = s.SortPairs(t.Context(), keys, values, 201, 16)
			if !errors.Is(err, scanerrors.ErrDispatchFailure) {
				t.Fatalf("err = %v, want ErrDispatchFailure", err)
			}
			if live := dev.Stats().LiveBuffers; live != 2 {
				t.Errorf("LiveBuffers = %d after failure, want 2", live)
			}
		})
	}
}

func TestSortAllocationFailureReleasesBuffers(t *testing.T) {
	// Allocations 1 and 2 are the caller's; the sort makes padded keys,
	// scratch keys, padded values, scratch values, the histogram and then
	// the histogram scan levels.
	for failAt := int64(3); failAt <= 9; failAt++ {
		t.Run(fmt.Sprintf("alloc-%d", failAt), func(t *testing.T) {
			var count atomic.Int64
			dev := openTestDevice(t, device.WithBeforeAlloc(func(int64) error {
				if count.Add(1) == failAt {
					return errors.New("injected")
				}
				return nil
			}))
			s, err := NewSorter[uint32](dev, WithCohortSize(4), WithKeysPerWorker(2))
			if err != nil {
				t.Fatal(err)
			}
			keys := uploadNew(t, dev, make([]uint32, 201))
			values := uploadNew(t, dev, make([]uint32, 201))

			_, _, err = s.SortPairs(t.Context(), keys, values, 201, 8)
			if !errors.Is(err, scanerrors.ErrAllocationFailure) {
				t.Fatalf("err = %v, want ErrAllocationFailure", err)
			}
			if live := dev.Stats().LiveBuffers; live != 2 {
				t.Errorf("LiveBuffers = %d after failure, want 2", live)
			}
		})
	}
}

func TestSortCanceledContext(t *testing.T) {
	dev := openTestDevice(t)
	s, err := NewSorter[uint32](dev, WithCohortSize(4))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := s.SortSlice(ctx, make([]uint32, 100), 32); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if live := dev.Stats().LiveBuffers; live != 0 {
		t.Errorf("LiveBuffers = %d, want 0", live)
	}
}

func TestNewSorterUnsupported(t *testing.T) {
	dev := openTestDevice(t)
	tests := []struct {
		name string
		new  func() error
	}{
		{"radix zero", func() error { _, err := NewSorter[uint32](dev, WithRadixBits(0)); return err }},
		{"radix too wide", func() error { _, err := NewSorter[uint32](dev, WithRadixBits(17)); return err }},
		{"radix wider than key", func() error { _, err := NewSorter[uint8](dev, WithRadixBits(9)); return err }},
		{"keys per worker", func() error { _, err := NewSorter[uint32](dev, WithKeysPerWorker(0)); return err }},
		{"layout", func() error { _, err := NewSorter[uint32](dev, WithHistogramLayout(HistogramLayout(5))); return err }},
		{"cohort", func() error { _, err := NewSorter[uint32](dev, WithCohortSize(6)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.new(); !errors.Is(err, scanerrors.ErrUnsupportedConfiguration) {
				t.Errorf("err = %v, want ErrUnsupportedConfiguration", err)
			}
		})
	}
}

func TestSortKeyWidthUnsupported(t *testing.T) {
	dev := openTestDevice(t)
	s, err := NewSorter[uint32](dev, WithRadixBits(4))
	if err != nil {
		t.Fatal(err)
	}
	keys := uploadNew(t, dev, []uint32{3, 2, 1})
	for _, width := range []int{0, -4, 6, 36} {
		if _, err := s.Sort(t.Context(), keys, 3, width); !errors.Is(err, scanerrors.ErrUnsupportedConfiguration) {
			t.Errorf("width %d: err = %v, want ErrUnsupportedConfiguration", width, err)
		}
	}
	if n := dev.Stats().Dispatches; n != 0 {
		t.Errorf("Dispatches = %d, want 0", n)
	}
}

func TestSortInputErrors(t *testing.T) {
	dev := openTestDevice(t)
	s, err := NewSorter[uint32](dev)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.SortPairsSlice(t.Context(), []uint32{1, 2}, []uint32{1}, 32); !errors.Is(err, scanerrors.ErrLengthMismatch) {
		t.Errorf("pair length mismatch: err = %v", err)
	}
	keys := uploadNew(t, dev, []uint32{1, 2})
	if _, err := s.Sort(t.Context(), keys, 3, 32); !errors.Is(err, scanerrors.ErrLengthMismatch) {
		t.Errorf("n > Len: err = %v", err)
	}
	_, _, err = s.SortPairs(t.Context(), keys, nil, 2, 32)
	if !errors.Is(err, scanerrors.ErrLengthMismatch) || errors.Is(err, scanerrors.ErrForeignBuffer) {
		t.Errorf("nil values: err = %v, want ErrLengthMismatch", err)
	}
}

func TestSortLengthBeyondMemoryLimit(t *testing.T) {
	dev := openTestDevice(t, device.WithMemoryLimit(1<<12))
	s, err := NewSorter[uint32](dev)
	if err != nil {
		t.Fatal(err)
	}
	keys := uploadNew(t, dev, make([]uint32, 900))
	if _, err := s.Sort(t.Context(), keys, 900, 32); !errors.Is(err, scanerrors.ErrUnsupportedConfiguration) {
		t.Errorf("err = %v, want ErrUnsupportedConfiguration", err)
	}
}
