package device

import (
	"fmt"
	"math"
	"unsafe"

	scanerrors "github.com/tamirms/radixscan/errors"
)

// Element is the set of fixed-width types a Buffer can hold.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Buffer is a handle to device memory holding elements of T.
//
// A Buffer owns its region: Close frees it and is safe to call more than
// once, so the usual pattern is
//
//	buf, err := device.Alloc[uint32](dev, n)
//	if err != nil { return err }
//	defer buf.Close()
type Buffer[T Element] struct {
	dev   *Device
	id    uint64
	alloc *allocation // nil for zero-length buffers
	data  []T
	n     int
}

// Alloc allocates a buffer of n elements, zero-initialized.
func Alloc[T Element](d *Device, n int) (*Buffer[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", scanerrors.ErrAllocationFailure, n)
	}
	if d.closed.Load() {
		return nil, scanerrors.ErrDeviceClosed
	}
	if n == 0 {
		return &Buffer[T]{dev: d}, nil
	}

	var zero T
	elemSize := int64(unsafe.Sizeof(zero))
	if int64(n) > math.MaxInt/elemSize {
		return nil, fmt.Errorf("%w: %d elements of %d bytes overflows", scanerrors.ErrAllocationFailure, n, elemSize)
	}

	id, a, raw, err := d.allocate(int64(n) * elemSize)
	if err != nil {
		return nil, err
	}
	return &Buffer[T]{
		dev:   d,
		id:    id,
		alloc: a,
		data:  view[T](raw, n),
		n:     n,
	}, nil
}

// Device returns the device the buffer was allocated on.
func (b *Buffer[T]) Device() *Device {
	return b.dev
}

// Len returns the logical number of elements.
func (b *Buffer[T]) Len() int {
	return b.n
}

// Cap returns the number of allocated elements.
func (b *Buffer[T]) Cap() int {
	return len(b.data)
}

// Closed reports whether the buffer has been released.
func (b *Buffer[T]) Closed() bool {
	return b.alloc != nil && b.alloc.closed.Load()
}

// Data returns the device-side view of the first Len elements. Kernels
// capture it when a launch is built; host code uses Upload and Download.
// Returns nil once the buffer is closed.
func (b *Buffer[T]) Data() []T {
	if b.Closed() {
		return nil
	}
	return b.data[:b.n]
}

// Upload copies src into the first len(src) elements.
func (b *Buffer[T]) Upload(src []T) error {
	if b.Closed() {
		return scanerrors.ErrBufferClosed
	}
	if len(src) > b.n {
		return fmt.Errorf("%w: upload of %d elements into buffer of %d", scanerrors.ErrLengthMismatch, len(src), b.n)
	}
	copy(b.data, src)
	return nil
}

// Download copies the first len(dst) elements into dst.
func (b *Buffer[T]) Download(dst []T) error {
	if b.Closed() {
		return scanerrors.ErrBufferClosed
	}
	if len(dst) > b.n {
		return fmt.Errorf("%w: download of %d elements from buffer of %d", scanerrors.ErrLengthMismatch, len(dst), b.n)
	}
	copy(dst, b.data)
	return nil
}

// Truncate shrinks the logical length to n. The allocation is unchanged
// until Close.
func (b *Buffer[T]) Truncate(n int) error {
	if b.Closed() {
		return scanerrors.ErrBufferClosed
	}
	if n < 0 || n > b.n {
		return fmt.Errorf("%w: truncate to %d of %d", scanerrors.ErrLengthMismatch, n, b.n)
	}
	b.n = n
	return nil
}

// Close frees the device memory. Safe to call multiple times.
func (b *Buffer[T]) Close() error {
	if b.alloc == nil {
		return nil
	}
	return b.dev.release(b.id, b.alloc)
}
