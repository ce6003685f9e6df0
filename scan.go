package radixscan

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"github.com/tamirms/radixscan/device"
	scanerrors "github.com/tamirms/radixscan/errors"
	"github.com/tamirms/radixscan/internal/bits"
	"github.com/tamirms/radixscan/internal/logger"
)

// Number is the set of element types a Scanner accepts.
type Number interface {
	~int32 | ~int64 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Scanner computes prefix sums of device buffers of any length.
//
// Each level scans blocks of BlockElems() elements in one dispatch and
// gathers the block totals into a smaller buffer. The totals are scanned
// the same way until a single block remains; the resulting offsets are then
// added back level by level.
//
// A Scanner is immutable and safe for concurrent use.
type Scanner[T Number] struct {
	dev      *device.Device
	cfg      *config
	block    blockScanner[T]
	elemSize int
	log      logger.Logger
}

// NewScanner validates the configuration against the device limits.
// It returns ErrUnsupportedConfiguration for a geometry the device cannot run.
func NewScanner[T Number](d *device.Device, opts ...Option) (*Scanner[T], error) {
	cfg := newConfig(opts)
	info := d.Info()
	if cfg.cohortSize < 1 || cfg.cohortSize > info.MaxCohortSize {
		return nil, fmt.Errorf("%w: cohort size %d outside [1, %d]",
			scanerrors.ErrUnsupportedConfiguration, cfg.cohortSize, info.MaxCohortSize)
	}
	block, err := newBlockScanner[T](cfg)
	if err != nil {
		return nil, err
	}
	if block.SharedBytes() > info.MaxSharedBytes {
		return nil, fmt.Errorf("%w: %s scan needs %d shared bytes per cohort, device allows %d",
			scanerrors.ErrUnsupportedConfiguration, cfg.algorithm, block.SharedBytes(), info.MaxSharedBytes)
	}

	var zero T
	return &Scanner[T]{
		dev:      d,
		cfg:      cfg,
		block:    block,
		elemSize: int(unsafe.Sizeof(zero)),
		log: cfg.log.With(
			"component", "scan",
			"algorithm", cfg.algorithm.String(),
			"block_elems", block.BlockElems(),
		),
	}, nil
}

// BlockElems returns the number of elements one cohort scans.
func (s *Scanner[T]) BlockElems() int {
	return s.block.BlockElems()
}

// Scan returns a new buffer of length n holding the prefix sums of
// in[0:n]. The input is not modified. The caller owns the result.
func (s *Scanner[T]) Scan(ctx context.Context, in *device.Buffer[T], n int, inclusive bool) (*device.Buffer[T], error) {
	if err := s.checkInput(in, n); err != nil {
		return nil, err
	}
	if n == 0 {
		return device.Alloc[T](s.dev, 0)
	}

	out, err := device.Alloc[T](s.dev, bits.RoundUp(n, s.BlockElems()))
	if err != nil {
		return nil, err
	}
	if err := s.scanInto(ctx, out, in, n, inclusive); err != nil {
		return nil, errors.Join(err, out.Close())
	}
	return out, nil
}

func (s *Scanner[T]) scanInto(ctx context.Context, out, in *device.Buffer[T], n int, inclusive bool) error {
	if err := device.Copy(ctx, out, in, n); err != nil {
		return err
	}
	if err := s.scanInPlace(ctx, out, n, inclusive); err != nil {
		return err
	}
	return out.Truncate(n)
}

// ScanSlice uploads data, scans it and downloads the result.
func (s *Scanner[T]) ScanSlice(ctx context.Context, data []T, inclusive bool) (result []T, err error) {
	in, err := device.Alloc[T](s.dev, len(data))
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, in.Close()) }()
	if err := in.Upload(data); err != nil {
		return nil, err
	}

	out, err := s.Scan(ctx, in, len(data), inclusive)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, out.Close()) }()

	result = make([]T, len(data))
	if err := out.Download(result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Scanner[T]) checkInput(in *device.Buffer[T], n int) error {
	if in == nil || in.Device() != s.dev {
		return scanerrors.ErrForeignBuffer
	}
	if in.Closed() {
		return scanerrors.ErrBufferClosed
	}
	if n < 0 || n > in.Len() {
		return fmt.Errorf("%w: scan of %d elements from buffer of %d", scanerrors.ErrLengthMismatch, n, in.Len())
	}
	return s.checkLength(n)
}

// checkLength rejects inputs whose working set cannot fit the device
// memory limit, before anything is allocated. The input itself counts.
func (s *Scanner[T]) checkLength(n int) error {
	limit := s.dev.Info().MemoryLimit
	if limit == 0 {
		return nil
	}
	need := int64(n+s.workingSet(n)) * int64(s.elemSize)
	if need > limit {
		return fmt.Errorf("%w: scan of %d elements needs %d bytes, device limit is %d",
			scanerrors.ErrUnsupportedConfiguration, n, need, limit)
	}
	return nil
}

// workingSet returns the elements a scan of n allocates: the padded output
// plus one padded sums buffer per level.
func (s *Scanner[T]) workingSet(n int) int {
	be := s.BlockElems()
	total := bits.RoundUp(n, be)
	for n > be {
		n = bits.CeilDiv(n, be)
		total += bits.RoundUp(n, be)
	}
	return total
}

// scanInPlace scans buf[0:n] in place. buf must hold at least
// RoundUp(n, BlockElems()) elements; the padding is overwritten.
//
// Deeper levels always scan exclusively: the offsets a level adds are the
// exclusive prefix of the block totals below it. All sums buffers are freed
// on every return path.
func (s *Scanner[T]) scanInPlace(ctx context.Context, buf *device.Buffer[T], n int, inclusive bool) (err error) {
	if n == 0 {
		return nil
	}
	be := s.BlockElems()
	stack := newLevelStack[T](bits.Levels(n, be))
	defer func() { err = errors.Join(err, stack.release()) }()

	if padded := bits.RoundUp(n, be); padded > n {
		if err := device.Fill(ctx, buf, n, padded, 0); err != nil {
			return err
		}
	}

	cur, curN := buf, n
	for depth := 0; ; depth++ {
		blocks := bits.CeilDiv(curN, be)

		// Alloc zero-fills, so the padding of every sums level is already
		// the additive identity.
		var sums *device.Buffer[T]
		var sumsData []T
		if blocks > 1 {
			sums, err = device.Alloc[T](s.dev, bits.RoundUp(blocks, be))
			if err != nil {
				return fmt.Errorf("scan level %d: %w", depth, err)
			}
			if err := stack.push(level[T]{data: cur, n: curN, blocks: blocks, sums: sums}); err != nil {
				return errors.Join(err, sums.Close())
			}
			sumsData = sums.Data()
		}

		s.log.Debug("scan level", "depth", depth, "n", curN, "blocks", blocks)
		l := s.block.Launch(cur.Data()[:blocks*be], sumsData, blocks, inclusive && depth == 0)
		if err := s.dev.Dispatch(ctx, l); err != nil {
			return err
		}
		if blocks == 1 {
			break
		}
		cur, curN = sums, blocks
	}

	for stack.depth() > 0 {
		if err := s.dev.Dispatch(ctx, s.addOffsets(stack.top())); err != nil {
			return err
		}
		if err := stack.pop(); err != nil {
			return err
		}
	}
	return nil
}

// addOffsets builds the correction pass of one level: every element of
// block b > 0 gets the scanned total of blocks [0, b).
func (s *Scanner[T]) addOffsets(l level[T]) device.Launch {
	be := s.BlockElems()
	cohort := s.cfg.cohortSize
	data := l.data.Data()
	offsets := l.sums.Data()
	n := l.n
	return device.Launch{
		Name:       "scan-add-offsets",
		Workers:    l.blocks * cohort,
		CohortSize: cohort,
		Body: func(w *device.Worker) {
			block := w.CohortID()
			if block == 0 {
				return
			}
			off := offsets[block]
			base := block * be
			for j := w.LocalID(); j < be && base+j < n; j += cohort {
				data[base+j] += off
			}
		},
	}
}
