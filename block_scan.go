package radixscan

import (
	"github.com/tamirms/radixscan/device"
)

// bankLayout maps logical shared-memory indices to padded ones. With
// avoidance enabled, one slot is skipped after every numBanks elements so
// that power-of-two strides in the sweep land in distinct banks.
type bankLayout struct {
	enabled bool
	shift   int
}

func (b bankLayout) pad(i int) int {
	if !b.enabled {
		return 0
	}
	return i >> b.shift
}

func (b bankLayout) at(i int) int {
	return i + b.pad(i)
}

// sharedLen is the padded length of an m-element shared array.
func (b bankLayout) sharedLen(m int) int {
	return m + b.pad(m-1)
}

// sweep runs the exclusive up-sweep/down-sweep scan over the m logical
// elements of s, m a power of two and at most twice the cohort size. It
// returns the total of the m elements to every worker. Every worker of the
// cohort must call it.
func sweep[T Number](w *device.Worker, s []T, m int, banks bankLayout) T {
	tid := w.LocalID()

	offset := 1
	for d := m >> 1; d > 0; d >>= 1 {
		w.Barrier()
		if tid < d {
			ai := offset*(2*tid+1) - 1
			bi := offset*(2*tid+2) - 1
			s[banks.at(bi)] += s[banks.at(ai)]
		}
		offset <<= 1
	}

	last := banks.at(m - 1)
	w.Barrier()
	total := s[last]
	w.Barrier()
	if tid == 0 {
		s[last] = 0
	}

	for d := 1; d < m; d <<= 1 {
		offset >>= 1
		w.Barrier()
		if tid < d {
			ai := banks.at(offset*(2*tid+1) - 1)
			bi := banks.at(offset*(2*tid+2) - 1)
			t := s[ai]
			s[ai] = s[bi]
			s[bi] += t
		}
	}
	w.Barrier()
	return total
}

// workEfficientScan scans 2×cohortSize elements per cohort, two per worker.
type workEfficientScan[T Number] struct {
	cohortSize int
	banks      bankLayout
	sharedLen  int
	elemSize   int
}

func newWorkEfficientScan[T Number](cohortSize int, banks bankLayout, elemSize int) *workEfficientScan[T] {
	return &workEfficientScan[T]{
		cohortSize: cohortSize,
		banks:      banks,
		sharedLen:  banks.sharedLen(2 * cohortSize),
		elemSize:   elemSize,
	}
}

func (k *workEfficientScan[T]) BlockElems() int  { return 2 * k.cohortSize }
func (k *workEfficientScan[T]) SharedBytes() int { return k.sharedLen * k.elemSize }

func (k *workEfficientScan[T]) Launch(data, sums []T, numBlocks int, inclusive bool) device.Launch {
	cohort := k.cohortSize
	m := 2 * cohort
	banks := k.banks
	sharedLen := k.sharedLen
	return device.Launch{
		Name:        "scan-block-work-efficient",
		Workers:     numBlocks * cohort,
		CohortSize:  cohort,
		SharedBytes: k.SharedBytes(),
		NewShared:   func() any { return make([]T, sharedLen) },
		Body: func(w *device.Worker) {
			s := device.Shared[T](w)
			tid := w.LocalID()
			block := w.CohortID()
			base := block * m

			ai, bi := tid, tid+cohort
			va, vb := data[base+ai], data[base+bi]
			s[banks.at(ai)] = va
			s[banks.at(bi)] = vb

			total := sweep(w, s, m, banks)

			ea, eb := s[banks.at(ai)], s[banks.at(bi)]
			if inclusive {
				ea += va
				eb += vb
			}
			data[base+ai] = ea
			data[base+bi] = eb
			if sums != nil && tid == 0 {
				sums[block] = total
			}
		},
	}
}

// vectorizedScan scans cohortSize×width elements per cohort. Each worker
// scans its width consecutive elements sequentially; the sweep then runs
// over the cohortSize per-worker totals.
type vectorizedScan[T Number] struct {
	cohortSize int
	width      int
	banks      bankLayout
	sharedLen  int
	elemSize   int
}

func newVectorizedScan[T Number](cohortSize, width int, banks bankLayout, elemSize int) *vectorizedScan[T] {
	return &vectorizedScan[T]{
		cohortSize: cohortSize,
		width:      width,
		banks:      banks,
		sharedLen:  banks.sharedLen(cohortSize),
		elemSize:   elemSize,
	}
}

func (k *vectorizedScan[T]) BlockElems() int  { return k.cohortSize * k.width }
func (k *vectorizedScan[T]) SharedBytes() int { return k.sharedLen * k.elemSize }

func (k *vectorizedScan[T]) Launch(data, sums []T, numBlocks int, inclusive bool) device.Launch {
	cohort := k.cohortSize
	width := k.width
	banks := k.banks
	sharedLen := k.sharedLen
	return device.Launch{
		Name:        "scan-block-vectorized",
		Workers:     numBlocks * cohort,
		CohortSize:  cohort,
		SharedBytes: k.SharedBytes(),
		NewShared:   func() any { return make([]T, sharedLen) },
		Body: func(w *device.Worker) {
			s := device.Shared[T](w)
			tid := w.LocalID()
			block := w.CohortID()
			start := block*cohort*width + tid*width
			run := data[start : start+width]

			// Exclusive prefix of the worker's own run, in registers.
			var local [maxVectorWidth]T
			var acc T
			for j, v := range run {
				local[j] = acc
				acc += v
			}
			s[banks.at(tid)] = acc

			total := sweep(w, s, cohort, banks)

			offset := s[banks.at(tid)]
			for j := range run {
				if inclusive {
					run[j] = offset + local[j] + run[j]
				} else {
					run[j] = offset + local[j]
				}
			}
			if sums != nil && tid == 0 {
				sums[block] = total
			}
		},
	}
}

// naiveScan is the Hillis-Steele scan: one element per worker and
// log2(cohortSize) double-buffered steps.
type naiveScan[T Number] struct {
	cohortSize int
	elemSize   int
}

func newNaiveScan[T Number](cohortSize, elemSize int) *naiveScan[T] {
	return &naiveScan[T]{cohortSize: cohortSize, elemSize: elemSize}
}

func (k *naiveScan[T]) BlockElems() int  { return k.cohortSize }
func (k *naiveScan[T]) SharedBytes() int { return 2 * k.cohortSize * k.elemSize }

func (k *naiveScan[T]) Launch(data, sums []T, numBlocks int, inclusive bool) device.Launch {
	m := k.cohortSize
	return device.Launch{
		Name:        "scan-block-naive",
		Workers:     numBlocks * m,
		CohortSize:  m,
		SharedBytes: k.SharedBytes(),
		NewShared:   func() any { return make([]T, 2*m) },
		Body: func(w *device.Worker) {
			s := device.Shared[T](w)
			tid := w.LocalID()
			block := w.CohortID()
			base := block * m

			out := 0
			s[tid] = data[base+tid]
			for offset := 1; offset < m; offset <<= 1 {
				in := out
				out = 1 - out
				w.Barrier()
				x := s[in*m+tid]
				if tid >= offset {
					x += s[in*m+tid-offset]
				}
				s[out*m+tid] = x
			}
			w.Barrier()

			incl := s[out*m+tid]
			if inclusive {
				data[base+tid] = incl
			} else if tid == 0 {
				data[base] = 0
			} else {
				data[base+tid] = s[out*m+tid-1]
			}
			if sums != nil && tid == m-1 {
				sums[block] = incl
			}
		},
	}
}
