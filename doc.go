// Package radixscan implements a recursive block-wise prefix scan and a
// stable LSD radix sort built on it, running on the cohort execution model
// of the device package.
//
// A scan splits its input into blocks that one cohort of workers scans in
// shared memory. Block totals are gathered and scanned recursively until a
// single block remains, then the offsets are added back level by level.
// Inputs of any length are supported; padding is internal.
//
// # Basic Usage
//
// Scanning:
//
//	dev, err := device.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	scanner, err := radixscan.NewScanner[uint32](dev, radixscan.WithAlgorithm(radixscan.AlgoVectorized))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sums, err := scanner.ScanSlice(ctx, []uint32{3, 1, 4, 1, 5, 9, 2, 6}, false)
//	// sums == [0 3 4 8 9 14 23 25]
//
// Sorting:
//
//	sorter, err := radixscan.NewSorter[uint32](dev, radixscan.WithRadixBits(8))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sorted, err := sorter.SortSlice(ctx, keys, 32)
//
// # Package Structure
//
// The implementation is organized as follows:
//
//   - Public API: scan.go (NewScanner, Scan, ScanSlice), sort.go (NewSorter, Sort, SortPairs)
//   - Configuration: options.go (Option, With* functions)
//   - Algorithm dispatch: algorithm.go (ScanAlgorithm, HistogramLayout, blockScanner factory)
//   - Block kernels: block_scan.go (naive, work-efficient, vectorized)
//   - Recursion: levels.go (fixed-capacity level stack)
//   - Radix passes: radix_kernels.go (histogram and scatter per layout)
//   - Verification: verify.go (sequential references, Checksum)
//   - Execution: device/ (buffers, dispatch, barriers, streams)
package radixscan
