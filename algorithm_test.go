package radixscan

import (
	"errors"
	"testing"

	scanerrors "github.com/tamirms/radixscan/errors"
)

func TestParseScanAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want ScanAlgorithm
	}{
		{"", AlgoWorkEfficient},
		{"work-efficient", AlgoWorkEfficient},
		{"Blelloch", AlgoWorkEfficient},
		{"naive", AlgoNaive},
		{"hillis-steele", AlgoNaive},
		{" vectorized ", AlgoVectorized},
	}
	for _, tt := range tests {
		got, err := ParseScanAlgorithm(tt.in)
		if err != nil {
			t.Errorf("ParseScanAlgorithm(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseScanAlgorithm(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if back, _ := ParseScanAlgorithm(got.String()); back != got {
			t.Errorf("String round trip of %v gave %v", got, back)
		}
	}
	if _, err := ParseScanAlgorithm("bitonic"); !errors.Is(err, scanerrors.ErrUnsupportedConfiguration) {
		t.Errorf("unknown name: err = %v", err)
	}
}

func TestParseHistogramLayout(t *testing.T) {
	for _, l := range []HistogramLayout{LayoutPerBlock, LayoutPerWorker} {
		got, err := ParseHistogramLayout(l.String())
		if err != nil || got != l {
			t.Errorf("ParseHistogramLayout(%q) = %v, %v", l.String(), got, err)
		}
	}
	if _, err := ParseHistogramLayout("per-thread-block"); !errors.Is(err, scanerrors.ErrUnsupportedConfiguration) {
		t.Errorf("unknown name: err = %v", err)
	}
}

func TestBankLayout(t *testing.T) {
	off := bankLayout{}
	if off.at(100) != 100 || off.sharedLen(64) != 64 {
		t.Error("disabled layout must be the identity")
	}

	on := bankLayout{enabled: true, shift: 5}
	if got := on.at(31); got != 31 {
		t.Errorf("at(31) = %d, want 31", got)
	}
	if got := on.at(32); got != 33 {
		t.Errorf("at(32) = %d, want 33", got)
	}
	if got := on.sharedLen(512); got != 527 {
		t.Errorf("sharedLen(512) = %d, want 527", got)
	}

	// Padded indices stay distinct and inside the shared array.
	seen := make(map[int]bool)
	for i := range 512 {
		p := on.at(i)
		if p >= on.sharedLen(512) || seen[p] {
			t.Fatalf("index %d maps to %d", i, p)
		}
		seen[p] = true
	}
}

func TestBlockElemsPerAlgorithm(t *testing.T) {
	dev := openTestDevice(t)
	tests := []struct {
		opts []Option
		want int
	}{
		{[]Option{WithAlgorithm(AlgoNaive), WithCohortSize(64)}, 64},
		{[]Option{WithAlgorithm(AlgoWorkEfficient), WithCohortSize(64)}, 128},
		{[]Option{WithAlgorithm(AlgoVectorized), WithCohortSize(64), WithVectorWidth(8)}, 512},
		{nil, 512},
	}
	for _, tt := range tests {
		s, err := NewScanner[uint32](dev, tt.opts...)
		if err != nil {
			t.Fatal(err)
		}
		if got := s.BlockElems(); got != tt.want {
			t.Errorf("BlockElems() = %d, want %d", got, tt.want)
		}
	}
}
