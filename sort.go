package radixscan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/tamirms/radixscan/device"
	scanerrors "github.com/tamirms/radixscan/errors"
	"github.com/tamirms/radixscan/internal/bits"
	"github.com/tamirms/radixscan/internal/logger"
)

// Key is the set of unsigned key types a Sorter accepts.
type Key interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Sorter is a stable LSD radix sort over device buffers.
//
// Each pass counts the current digit per block, exclusively scans the
// counts with a Scanner, then scatters every key to its bucket's next free
// slot. Passes alternate between two buffers.
//
// A Sorter is immutable and safe for concurrent use.
type Sorter[K Key] struct {
	dev     *device.Device
	cfg     *config
	scanner *Scanner[uint32]
	keyBits int
	keySize int
	log     logger.Logger
}

// NewSorter validates the radix geometry. The options also configure the
// Scanner used for the histograms.
func NewSorter[K Key](d *device.Device, opts ...Option) (*Sorter[K], error) {
	cfg := newConfig(opts)
	var zero K
	keySize := int(unsafe.Sizeof(zero))
	keyBits := 8 * keySize

	if cfg.radixBits < 1 || cfg.radixBits > min(maxRadixBits, keyBits) {
		return nil, fmt.Errorf("%w: radix width %d outside [1, %d]",
			scanerrors.ErrUnsupportedConfiguration, cfg.radixBits, min(maxRadixBits, keyBits))
	}
	if cfg.keysPerWorker < 1 {
		return nil, fmt.Errorf("%w: keys per worker %d", scanerrors.ErrUnsupportedConfiguration, cfg.keysPerWorker)
	}
	if cfg.layout != LayoutPerBlock && cfg.layout != LayoutPerWorker {
		return nil, fmt.Errorf("%w: unknown histogram layout %d", scanerrors.ErrUnsupportedConfiguration, cfg.layout)
	}

	scanner, err := NewScanner[uint32](d, opts...)
	if err != nil {
		return nil, err
	}

	return &Sorter[K]{
		dev:     d,
		cfg:     cfg,
		scanner: scanner,
		keyBits: keyBits,
		keySize: keySize,
		log: cfg.log.With(
			"component", "sort",
			"radix_bits", cfg.radixBits,
			"layout", cfg.layout.String(),
		),
	}, nil
}

// BlockElems returns the number of keys one cohort handles per pass.
func (s *Sorter[K]) BlockElems() int {
	return s.cfg.cohortSize * s.cfg.keysPerWorker
}

// Sort orders keys[0:n] by their low keyWidthBits bits.
//
// The returned buffer has length n and is owned by the caller. When n is a
// whole number of blocks and keys.Len() == n, the passes run in keys
// itself and every second pass writes into it. With an even pass count the
// result is keys. With an odd count above one, or after a failed pass, keys
// is left holding a partly sorted permutation of its input. Otherwise keys
// is left untouched.
func (s *Sorter[K]) Sort(ctx context.Context, keys *device.Buffer[K], n, keyWidthBits int) (*device.Buffer[K], error) {
	out, _, err := s.sort(ctx, keys, nil, n, keyWidthBits)
	return out, err
}

// SortPairs orders keys[0:n] and carries values[0:n] along with them.
// Ownership follows Sort for both buffers, and values is overwritten under
// the same condition as keys. values must not be nil.
func (s *Sorter[K]) SortPairs(ctx context.Context, keys *device.Buffer[K], values *device.Buffer[uint32], n, keyWidthBits int) (*device.Buffer[K], *device.Buffer[uint32], error) {
	if values == nil {
		return nil, nil, fmt.Errorf("%w: values buffer is nil", scanerrors.ErrLengthMismatch)
	}
	return s.sort(ctx, keys, values, n, keyWidthBits)
}

// SortSlice uploads keys, sorts them and downloads the result.
func (s *Sorter[K]) SortSlice(ctx context.Context, keys []K, keyWidthBits int) ([]K, error) {
	out, _, err := s.sortSlice(ctx, keys, nil, keyWidthBits)
	return out, err
}

// SortPairsSlice is SortSlice carrying values along with the keys.
func (s *Sorter[K]) SortPairsSlice(ctx context.Context, keys []K, values []uint32, keyWidthBits int) ([]K, []uint32, error) {
	if len(values) != len(keys) {
		return nil, nil, fmt.Errorf("%w: %d keys, %d values", scanerrors.ErrLengthMismatch, len(keys), len(values))
	}
	return s.sortSlice(ctx, keys, values, keyWidthBits)
}

func (s *Sorter[K]) sortSlice(ctx context.Context, keys []K, values []uint32, keyWidthBits int) (outKeys []K, outVals []uint32, err error) {
	if err := s.checkWidth(keyWidthBits); err != nil {
		return nil, nil, err
	}
	n := len(keys)
	sc := &scratch{}
	defer func() { err = errors.Join(err, sc.release()) }()

	kin, err := device.Alloc[K](s.dev, n)
	if err != nil {
		return nil, nil, err
	}
	sc.add(kin)
	if err := kin.Upload(keys); err != nil {
		return nil, nil, err
	}
	var vin *device.Buffer[uint32]
	if values != nil {
		if vin, err = device.Alloc[uint32](s.dev, n); err != nil {
			return nil, nil, err
		}
		sc.add(vin)
		if err := vin.Upload(values); err != nil {
			return nil, nil, err
		}
	}

	kout, vout, err := s.sort(ctx, kin, vin, n, keyWidthBits)
	if err != nil {
		return nil, nil, err
	}
	sc.add(kout)
	outKeys = make([]K, n)
	if err := kout.Download(outKeys); err != nil {
		return nil, nil, err
	}
	if vout != nil {
		sc.add(vout)
		outVals = make([]uint32, n)
		if err := vout.Download(outVals); err != nil {
			return nil, nil, err
		}
	}
	return outKeys, outVals, nil
}

func (s *Sorter[K]) checkWidth(keyWidthBits int) error {
	if keyWidthBits < 1 || keyWidthBits > s.keyBits {
		return fmt.Errorf("%w: key width %d outside [1, %d]",
			scanerrors.ErrUnsupportedConfiguration, keyWidthBits, s.keyBits)
	}
	if keyWidthBits%s.cfg.radixBits != 0 {
		return fmt.Errorf("%w: radix width %d does not divide key width %d",
			scanerrors.ErrUnsupportedConfiguration, s.cfg.radixBits, keyWidthBits)
	}
	return nil
}

func checkBuffer[T device.Element](d *device.Device, b *device.Buffer[T], n int) error {
	if b == nil || b.Device() != d {
		return scanerrors.ErrForeignBuffer
	}
	if b.Closed() {
		return scanerrors.ErrBufferClosed
	}
	if n < 0 || n > b.Len() {
		return fmt.Errorf("%w: sort of %d elements from buffer of %d", scanerrors.ErrLengthMismatch, n, b.Len())
	}
	return nil
}

// checkLength rejects sorts whose counters or working set cannot be served.
func (s *Sorter[K]) checkLength(padded, histLen int, pairs bool) error {
	if uint64(padded) > math.MaxUint32 {
		return fmt.Errorf("%w: %d keys exceed 32-bit positions", scanerrors.ErrUnsupportedConfiguration, padded)
	}
	limit := s.dev.Info().MemoryLimit
	if limit == 0 {
		return nil
	}
	need := 2 * int64(padded) * int64(s.keySize)
	if pairs {
		need += 2 * int64(padded) * 4
	}
	need += int64(s.scanner.workingSet(histLen)) * 4
	if need > limit {
		return fmt.Errorf("%w: sort of %d keys needs %d bytes, device limit is %d",
			scanerrors.ErrUnsupportedConfiguration, padded, need, limit)
	}
	return nil
}

func (s *Sorter[K]) sort(ctx context.Context, keys *device.Buffer[K], values *device.Buffer[uint32], n, keyWidthBits int) (outKeys *device.Buffer[K], outVals *device.Buffer[uint32], err error) {
	if err := s.checkWidth(keyWidthBits); err != nil {
		return nil, nil, err
	}
	if err := checkBuffer(s.dev, keys, n); err != nil {
		return nil, nil, err
	}
	pairs := values != nil
	if pairs {
		if err := checkBuffer(s.dev, values, n); err != nil {
			return nil, nil, err
		}
	}

	be := s.BlockElems()
	padded := bits.RoundUp(n, be)
	p := radixPass[K]{
		cohortSize:    s.cfg.cohortSize,
		keysPerWorker: s.cfg.keysPerWorker,
		numBlocks:     padded / be,
		numBuckets:    1 << s.cfg.radixBits,
		mask:          1<<s.cfg.radixBits - 1,
		layout:        s.cfg.layout,
	}
	if err := s.checkLength(padded, p.histogramLen(), pairs); err != nil {
		return nil, nil, err
	}
	if n == 0 {
		if outKeys, err = device.Alloc[K](s.dev, 0); err != nil {
			return nil, nil, err
		}
		if pairs {
			if outVals, err = device.Alloc[uint32](s.dev, 0); err != nil {
				return nil, nil, err
			}
		}
		return outKeys, outVals, nil
	}

	sc := &scratch{}
	defer func() {
		if err != nil {
			err = errors.Join(err, sc.release())
			outKeys, outVals = nil, nil
			return
		}
		err = sc.release(outKeys, outVals)
	}()

	st := s.dev.NewStream()
	defer func() { err = errors.Join(err, st.Close()) }()

	// Padding keys are all ones so they sort after every real key and are
	// cut off by the final truncation.
	srcK, err := s.padded(ctx, st, sc, keys, n, padded, ^K(0))
	if err != nil {
		return nil, nil, err
	}
	dstK, err := device.Alloc[K](s.dev, padded)
	if err != nil {
		return nil, nil, err
	}
	sc.add(dstK)

	var srcV, dstV *device.Buffer[uint32]
	if pairs {
		if srcV, err = s.paddedValues(ctx, st, sc, values, n, padded); err != nil {
			return nil, nil, err
		}
		if dstV, err = device.Alloc[uint32](s.dev, padded); err != nil {
			return nil, nil, err
		}
		sc.add(dstV)
	}

	histLen := p.histogramLen()
	hist, err := device.Alloc[uint32](s.dev, bits.RoundUp(histLen, s.scanner.BlockElems()))
	if err != nil {
		return nil, nil, err
	}
	sc.add(hist)

	passes := keyWidthBits / s.cfg.radixBits
	for pass := range passes {
		p.shift = uint(pass * s.cfg.radixBits)
		s.log.Debug("radix pass", "pass", pass, "shift", p.shift, "n", n, "blocks", p.numBlocks)

		if err := s.runPass(ctx, st, p, srcK, dstK, srcV, dstV, hist, histLen); err != nil {
			return nil, nil, fmt.Errorf("radix pass %d: %w", pass, err)
		}
		srcK, dstK = dstK, srcK
		srcV, dstV = dstV, srcV
	}

	if err := srcK.Truncate(n); err != nil {
		return nil, nil, err
	}
	if pairs {
		if err := srcV.Truncate(n); err != nil {
			return nil, nil, err
		}
	}
	return srcK, srcV, nil
}

func (s *Sorter[K]) runPass(ctx context.Context, st *device.Stream, p radixPass[K], srcK, dstK *device.Buffer[K], srcV, dstV *device.Buffer[uint32], hist *device.Buffer[uint32], histLen int) error {
	zero, err := device.FillKernel(hist, 0, histLen, 0)
	if err != nil {
		return err
	}
	if err := st.Enqueue(ctx, zero); err != nil {
		return err
	}
	if err := st.Enqueue(ctx, p.histogram(srcK.Data(), hist.Data()[:histLen])); err != nil {
		return err
	}
	if err := st.Synchronize(); err != nil {
		return err
	}

	if err := s.scanner.scanInPlace(ctx, hist, histLen, false); err != nil {
		return err
	}

	var sv, dv []uint32
	if srcV != nil {
		sv, dv = srcV.Data(), dstV.Data()
	}
	return s.dev.Dispatch(ctx, p.scatter(srcK.Data(), dstK.Data(), sv, dv, hist.Data()[:histLen]))
}

// padded returns a buffer of padded elements holding keys[0:n] followed by
// pad. When no padding is needed the caller's buffer is used directly.
func (s *Sorter[K]) padded(ctx context.Context, st *device.Stream, sc *scratch, keys *device.Buffer[K], n, padded int, pad K) (*device.Buffer[K], error) {
	if padded == n && keys.Len() == n {
		return keys, nil
	}
	buf, err := device.Alloc[K](s.dev, padded)
	if err != nil {
		return nil, err
	}
	sc.add(buf)
	if err := enqueueCopyPad(ctx, st, buf, keys, n, padded, pad); err != nil {
		return nil, err
	}
	return buf, st.Synchronize()
}

func (s *Sorter[K]) paddedValues(ctx context.Context, st *device.Stream, sc *scratch, values *device.Buffer[uint32], n, padded int) (*device.Buffer[uint32], error) {
	if padded == n && values.Len() == n {
		return values, nil
	}
	buf, err := device.Alloc[uint32](s.dev, padded)
	if err != nil {
		return nil, err
	}
	sc.add(buf)
	if err := enqueueCopyPad(ctx, st, buf, values, n, padded, 0); err != nil {
		return nil, err
	}
	return buf, st.Synchronize()
}

func enqueueCopyPad[T device.Element](ctx context.Context, st *device.Stream, dst, src *device.Buffer[T], n, padded int, pad T) error {
	cp, err := device.CopyKernel(dst, src, n)
	if err != nil {
		return err
	}
	if err := st.Enqueue(ctx, cp); err != nil {
		return err
	}
	if padded == n {
		return nil
	}
	fill, err := device.FillKernel(dst, n, padded, pad)
	if err != nil {
		return err
	}
	return st.Enqueue(ctx, fill)
}

// scratch tracks the buffers one call allocated so that every exit path
// frees the ones not handed back to the caller.
type scratch struct {
	bufs []closer
}

type closer interface {
	Close() error
}

func (sc *scratch) add(c closer) {
	sc.bufs = append(sc.bufs, c)
}

// release closes every tracked buffer except keep. Nil keep entries are
// ignored.
func (sc *scratch) release(keep ...closer) error {
	var errs []error
	for _, b := range sc.bufs {
		if kept(b, keep) {
			continue
		}
		errs = append(errs, b.Close())
	}
	sc.bufs = nil
	return errors.Join(errs...)
}

func kept(b closer, keep []closer) bool {
	for _, k := range keep {
		if k == b {
			return true
		}
	}
	return false
}
