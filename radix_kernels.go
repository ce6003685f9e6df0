package radixscan

import (
	"sync/atomic"

	"github.com/tamirms/radixscan/device"
)

// radixPass describes the geometry of one counting-sort pass. Keys are
// grouped into blocks of cohortSize×keysPerWorker; block b is handled by
// cohort b.
type radixPass[K Key] struct {
	cohortSize    int
	keysPerWorker int
	numBlocks     int
	numBuckets    int
	shift         uint
	mask          uint64
	layout        HistogramLayout
}

func (p radixPass[K]) blockElems() int {
	return p.cohortSize * p.keysPerWorker
}

func (p radixPass[K]) digit(k K) int {
	return int((uint64(k) >> p.shift) & p.mask)
}

// histogramLen returns the number of counters the layout needs. Counters
// are ordered bucket-major so that their exclusive scan yields each
// (bucket, block[, worker]) its first output position.
func (p radixPass[K]) histogramLen() int {
	n := p.numBuckets * p.numBlocks
	if p.layout == LayoutPerWorker {
		n *= p.cohortSize
	}
	return n
}

// histogram builds the counting kernel. hist must be zeroed beforehand.
func (p radixPass[K]) histogram(keys []K, hist []uint32) device.Launch {
	if p.layout == LayoutPerWorker {
		return p.histogramPerWorker(keys, hist)
	}
	return p.histogramPerBlock(keys, hist)
}

// scatter builds the kernel moving src into dst at the scanned offsets.
// vals may be nil. hist is consumed.
func (p radixPass[K]) scatter(src, dst []K, srcVals, dstVals []uint32, hist []uint32) device.Launch {
	if p.layout == LayoutPerWorker {
		return p.scatterPerWorker(src, dst, srcVals, dstVals, hist)
	}
	return p.scatterPerBlock(src, dst, srcVals, dstVals, hist)
}

func (p radixPass[K]) histogramPerBlock(keys []K, hist []uint32) device.Launch {
	cohort := p.cohortSize
	be := p.blockElems()
	numBlocks := p.numBlocks
	return device.Launch{
		Name:       "radix-histogram-per-block",
		Workers:    numBlocks * cohort,
		CohortSize: cohort,
		Body: func(w *device.Worker) {
			block := w.CohortID()
			base := block * be
			for j := w.LocalID(); j < be; j += cohort {
				d := p.digit(keys[base+j])
				atomic.AddUint32(&hist[d*numBlocks+block], 1)
			}
		},
	}
}

// scatterPerBlock gives bucket d to worker d mod cohortSize. Each worker
// walks the whole block in index order and places only its buckets, so
// keys of equal digit keep their relative order.
func (p radixPass[K]) scatterPerBlock(src, dst []K, srcVals, dstVals []uint32, hist []uint32) device.Launch {
	cohort := p.cohortSize
	be := p.blockElems()
	numBlocks := p.numBlocks
	numBuckets := p.numBuckets
	return device.Launch{
		Name:       "radix-scatter-per-block",
		Workers:    numBlocks * cohort,
		CohortSize: cohort,
		Body: func(w *device.Worker) {
			tid := w.LocalID()
			if tid >= numBuckets {
				return
			}
			block := w.CohortID()
			base := block * be
			for j := range be {
				k := src[base+j]
				d := p.digit(k)
				if d%cohort != tid {
					continue
				}
				idx := d*numBlocks + block
				pos := hist[idx]
				hist[idx] = pos + 1
				dst[pos] = k
				if dstVals != nil {
					dstVals[pos] = srcVals[base+j]
				}
			}
		},
	}
}

func (p radixPass[K]) histogramPerWorker(keys []K, hist []uint32) device.Launch {
	cohort := p.cohortSize
	kpw := p.keysPerWorker
	numBlocks := p.numBlocks
	return device.Launch{
		Name:       "radix-histogram-per-worker",
		Workers:    numBlocks * cohort,
		CohortSize: cohort,
		Body: func(w *device.Worker) {
			tid := w.LocalID()
			block := w.CohortID()
			start := w.GlobalID() * kpw
			for _, k := range keys[start : start+kpw] {
				hist[(p.digit(k)*numBlocks+block)*cohort+tid]++
			}
		},
	}
}

// scatterPerWorker lets every worker place its own run. The counters are
// ordered (bucket, block, worker), which matches input order within a
// bucket.
func (p radixPass[K]) scatterPerWorker(src, dst []K, srcVals, dstVals []uint32, hist []uint32) device.Launch {
	cohort := p.cohortSize
	kpw := p.keysPerWorker
	numBlocks := p.numBlocks
	return device.Launch{
		Name:       "radix-scatter-per-worker",
		Workers:    numBlocks * cohort,
		CohortSize: cohort,
		Body: func(w *device.Worker) {
			tid := w.LocalID()
			block := w.CohortID()
			start := w.GlobalID() * kpw
			for i := start; i < start+kpw; i++ {
				k := src[i]
				idx := (p.digit(k)*numBlocks+block)*cohort + tid
				pos := hist[idx]
				hist[idx] = pos + 1
				dst[pos] = k
				if dstVals != nil {
					dstVals[pos] = srcVals[i]
				}
			}
		},
	}
}
