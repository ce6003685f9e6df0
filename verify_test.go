package radixscan

import (
	"errors"
	"strings"
	"testing"

	scanerrors "github.com/tamirms/radixscan/errors"
)

func TestVerifyScan(t *testing.T) {
	input := []uint32{3, 1, 4, 1, 5}
	if err := VerifyScan(input, []uint32{0, 3, 4, 8, 9}, false); err != nil {
		t.Errorf("exclusive: %v", err)
	}
	if err := VerifyScan(input, []uint32{3, 4, 8, 9, 14}, true); err != nil {
		t.Errorf("inclusive: %v", err)
	}

	err := VerifyScan(input, []uint32{0, 3, 5, 8, 9}, false)
	if !errors.Is(err, scanerrors.ErrValidationFailed) {
		t.Fatalf("err = %v, want ErrValidationFailed", err)
	}
	if !strings.Contains(err.Error(), "index 2") {
		t.Errorf("error %q does not name the first mismatch", err)
	}

	if err := VerifyScan(input, input[:3], false); !errors.Is(err, scanerrors.ErrValidationFailed) {
		t.Errorf("length mismatch: err = %v", err)
	}
}

func TestVerifyScanFloatTolerance(t *testing.T) {
	input := []float64{0.1, 0.2, 0.3}
	// Different association order than the sequential reference.
	output := []float64{0.1, 0.1 + 0.2, 0.1 + (0.2 + 0.3)}
	if err := VerifyScan(input, output, true); err != nil {
		t.Error(err)
	}
	if err := VerifyScan(input, []float64{0.1, 0.3, 0.7}, true); err == nil {
		t.Error("accepted a wrong float result")
	}
}

func TestVerifySorted(t *testing.T) {
	input := []uint16{0x25, 0x03, 0x15, 0x01}
	// Sorted by the low 4 bits, ties in input order.
	if err := VerifySorted(input, []uint16{0x01, 0x03, 0x25, 0x15}, 4); err != nil {
		t.Error(err)
	}
	// Same low bits but ties swapped.
	if err := VerifySorted(input, []uint16{0x01, 0x03, 0x15, 0x25}, 4); !errors.Is(err, scanerrors.ErrValidationFailed) {
		t.Errorf("unstable order: err = %v", err)
	}
	// The full width orders the tied keys.
	if err := VerifySorted(input, []uint16{0x01, 0x03, 0x25, 0x15}, 16); !errors.Is(err, scanerrors.ErrValidationFailed) {
		t.Errorf("full width: err = %v", err)
	}
}

func TestVerifySortedPairs(t *testing.T) {
	keys := []uint32{2, 1, 2}
	vals := []uint32{10, 20, 30}
	if err := VerifySortedPairs(keys, vals, []uint32{1, 2, 2}, []uint32{20, 10, 30}, 32); err != nil {
		t.Error(err)
	}
	if err := VerifySortedPairs(keys, vals, []uint32{1, 2, 2}, []uint32{20, 30, 10}, 32); !errors.Is(err, scanerrors.ErrValidationFailed) {
		t.Errorf("swapped values: err = %v", err)
	}
	if err := VerifySortedPairs(keys, vals[:2], keys, vals, 32); !errors.Is(err, scanerrors.ErrValidationFailed) {
		t.Errorf("length mismatch: err = %v", err)
	}
}

func TestChecksum(t *testing.T) {
	a := []uint32{1, 2, 3}
	if Checksum(a) != Checksum([]uint32{1, 2, 3}) {
		t.Error("equal data, different checksums")
	}
	if Checksum(a) == Checksum([]uint32{1, 3, 2}) {
		t.Error("reordered data, same checksum")
	}

	// Longer than one encoding chunk.
	rng := newTestRNG(t)
	big := randomUint64s(rng, 10000)
	sum := Checksum(big)
	big[9999]++
	if Checksum(big) == sum {
		t.Error("change in the last chunk not detected")
	}
}
