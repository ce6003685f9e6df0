package radixscan

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/tamirms/radixscan/device"
	scanerrors "github.com/tamirms/radixscan/errors"
	"github.com/tamirms/radixscan/internal/bits"
)

// ScanAlgorithm identifies the strategy used to scan one block inside a
// single dispatch.
type ScanAlgorithm uint8

const (
	// AlgoWorkEfficient is the up-sweep/down-sweep scan: two elements per
	// worker, O(m) additions in O(log m) barrier-separated steps.
	AlgoWorkEfficient ScanAlgorithm = iota

	// AlgoNaive is the Hillis-Steele scan: one element per worker,
	// O(m log m) additions, double-buffered shared memory.
	AlgoNaive

	// AlgoVectorized scans VectorWidth consecutive elements per worker
	// sequentially, then runs the work-efficient sweep over the per-worker
	// totals.
	AlgoVectorized
)

// String returns the algorithm name.
func (a ScanAlgorithm) String() string {
	switch a {
	case AlgoWorkEfficient:
		return "work-efficient"
	case AlgoNaive:
		return "naive"
	case AlgoVectorized:
		return "vectorized"
	default:
		return "unknown"
	}
}

// ParseScanAlgorithm converts an algorithm name to a ScanAlgorithm.
func ParseScanAlgorithm(name string) (ScanAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "work-efficient", "blelloch":
		return AlgoWorkEfficient, nil
	case "naive", "hillis-steele":
		return AlgoNaive, nil
	case "vectorized", "vector":
		return AlgoVectorized, nil
	}
	return 0, fmt.Errorf("%w: unknown scan algorithm %q", scanerrors.ErrUnsupportedConfiguration, name)
}

// HistogramLayout identifies how a radix pass lays out its bucket counts.
type HistogramLayout uint8

const (
	// LayoutPerBlock keeps one count per (bucket, block). Workers tally with
	// atomics; the scatter assigns each bucket to one worker.
	LayoutPerBlock HistogramLayout = iota

	// LayoutPerWorker keeps one count per (bucket, block, worker). Every
	// worker counts and scatters its own run of keys without contention, at
	// the cost of a cohortSize-times larger histogram to scan.
	LayoutPerWorker
)

// String returns the layout name.
func (l HistogramLayout) String() string {
	switch l {
	case LayoutPerBlock:
		return "per-block"
	case LayoutPerWorker:
		return "per-worker"
	default:
		return "unknown"
	}
}

// ParseHistogramLayout converts a layout name to a HistogramLayout.
func ParseHistogramLayout(name string) (HistogramLayout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "per-block", "block":
		return LayoutPerBlock, nil
	case "per-worker", "worker":
		return LayoutPerWorker, nil
	}
	return 0, fmt.Errorf("%w: unknown histogram layout %q", scanerrors.ErrUnsupportedConfiguration, name)
}

// blockScanner builds the dispatch that scans every block of one level.
//
// Each block of BlockElems() elements is scanned by one cohort entirely in
// shared memory. The block's total is written to sums[block] when sums is
// non-nil. Exclusive and inclusive scans produce the same totals.
//
// Implementations are immutable and safe for concurrent use.
type blockScanner[T Number] interface {
	// BlockElems returns cohortSize × elementsPerWorker.
	BlockElems() int

	// SharedBytes returns the shared memory one cohort needs.
	SharedBytes() int

	// Launch builds the dispatch over data[0 : numBlocks*BlockElems()].
	Launch(data, sums []T, numBlocks int, inclusive bool) device.Launch
}

// newBlockScanner validates the scan geometry and returns the strategy.
func newBlockScanner[T Number](cfg *config) (blockScanner[T], error) {
	if !bits.IsPowerOfTwo(cfg.cohortSize) {
		return nil, fmt.Errorf("%w: cohort size %d is not a power of two",
			scanerrors.ErrUnsupportedConfiguration, cfg.cohortSize)
	}
	banks := bankLayout{}
	if cfg.avoidBankConflicts {
		if !bits.IsPowerOfTwo(cfg.numBanks) {
			return nil, fmt.Errorf("%w: bank count %d is not a power of two",
				scanerrors.ErrUnsupportedConfiguration, cfg.numBanks)
		}
		banks = bankLayout{enabled: true, shift: bits.Log2(cfg.numBanks)}
	}

	var zero T
	elemSize := int(unsafe.Sizeof(zero))

	switch cfg.algorithm {
	case AlgoWorkEfficient:
		return newWorkEfficientScan[T](cfg.cohortSize, banks, elemSize), nil
	case AlgoNaive:
		return newNaiveScan[T](cfg.cohortSize, elemSize), nil
	case AlgoVectorized:
		if !bits.IsPowerOfTwo(cfg.vectorWidth) || cfg.vectorWidth < 2 || cfg.vectorWidth > maxVectorWidth {
			return nil, fmt.Errorf("%w: vector width %d must be a power of two in [2, %d]",
				scanerrors.ErrUnsupportedConfiguration, cfg.vectorWidth, maxVectorWidth)
		}
		return newVectorizedScan[T](cfg.cohortSize, cfg.vectorWidth, banks, elemSize), nil
	}
	return nil, fmt.Errorf("%w: unknown scan algorithm %d", scanerrors.ErrUnsupportedConfiguration, cfg.algorithm)
}
