package device

import (
	"context"
	"fmt"

	scanerrors "github.com/tamirms/radixscan/errors"
	"github.com/tamirms/radixscan/internal/bits"
)

const (
	// utilityCohortSize is the cohort size of the copy and fill kernels.
	utilityCohortSize = 256

	// utilityCohortsPerSlot bounds the grid of the copy and fill kernels;
	// workers stride over the range instead of getting one element each.
	utilityCohortsPerSlot = 4
)

// utilityGeometry returns a grid-stride geometry for count elements.
func (d *Device) utilityGeometry(count int) (workers, cohortSize int) {
	cohortSize = min(utilityCohortSize, d.cfg.maxCohortSize)
	cohorts := min(bits.CeilDiv(count, cohortSize), utilityCohortsPerSlot*d.cfg.concurrency)
	return cohorts * cohortSize, cohortSize
}

// CopyKernel builds a launch copying src[0:n] into dst[0:n].
func CopyKernel[T Element](dst, src *Buffer[T], n int) (Launch, error) {
	if dst.dev != src.dev {
		return Launch{}, scanerrors.ErrForeignBuffer
	}
	if dst.Closed() || src.Closed() {
		return Launch{}, scanerrors.ErrBufferClosed
	}
	if n < 0 || n > src.Len() || n > dst.Len() {
		return Launch{}, fmt.Errorf("%w: copy of %d elements from %d into %d",
			scanerrors.ErrLengthMismatch, n, src.Len(), dst.Len())
	}
	in, out := src.Data(), dst.Data()
	workers, cohortSize := dst.dev.utilityGeometry(n)
	return Launch{
		Name:       "copy",
		Workers:    workers,
		CohortSize: cohortSize,
		Body: func(w *Worker) {
			for i := w.GlobalID(); i < n; i += w.GlobalSize() {
				out[i] = in[i]
			}
		},
	}, nil
}

// FillKernel builds a launch setting buf[from:to] to v.
func FillKernel[T Element](buf *Buffer[T], from, to int, v T) (Launch, error) {
	if buf.Closed() {
		return Launch{}, scanerrors.ErrBufferClosed
	}
	if from < 0 || from > to || to > buf.Len() {
		return Launch{}, fmt.Errorf("%w: fill [%d, %d) of %d", scanerrors.ErrLengthMismatch, from, to, buf.Len())
	}
	data := buf.Data()
	count := to - from
	workers, cohortSize := buf.dev.utilityGeometry(count)
	return Launch{
		Name:       "fill",
		Workers:    workers,
		CohortSize: cohortSize,
		Body: func(w *Worker) {
			for i := w.GlobalID(); i < count; i += w.GlobalSize() {
				data[from+i] = v
			}
		},
	}, nil
}

// Copy dispatches CopyKernel and waits for it.
func Copy[T Element](ctx context.Context, dst, src *Buffer[T], n int) error {
	l, err := CopyKernel(dst, src, n)
	if err != nil {
		return err
	}
	return dst.dev.Dispatch(ctx, l)
}

// Fill dispatches FillKernel and waits for it.
func Fill[T Element](ctx context.Context, buf *Buffer[T], from, to int, v T) error {
	l, err := FillKernel(buf, from, to, v)
	if err != nil {
		return err
	}
	return buf.dev.Dispatch(ctx, l)
}
