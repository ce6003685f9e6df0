package device

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

// MemoryKind selects where device buffers live.
type MemoryKind uint8

const (
	// MemoryHeap backs buffers with Go heap memory.
	MemoryHeap MemoryKind = iota

	// MemoryMapped backs buffers with anonymous memory mappings that are
	// returned to the OS as soon as the buffer is closed.
	MemoryMapped
)

// String returns the backend name.
func (k MemoryKind) String() string {
	switch k {
	case MemoryHeap:
		return "heap"
	case MemoryMapped:
		return "mapped"
	default:
		return "unknown"
	}
}

// ParseMemoryKind converts a backend name to a MemoryKind.
func ParseMemoryKind(name string) (MemoryKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "heap":
		return MemoryHeap, nil
	case "mapped", "mmap":
		return MemoryMapped, nil
	default:
		return 0, fmt.Errorf("unknown memory kind %q (expected heap or mapped)", name)
	}
}

// allocator hands out raw, 8-byte aligned regions. The returned release
// function gives the region back; it is called exactly once.
type allocator interface {
	allocate(size int) (data []byte, release func() error, err error)
}

func newAllocator(kind MemoryKind) (allocator, error) {
	switch kind {
	case MemoryHeap:
		return heapAllocator{}, nil
	case MemoryMapped:
		return mappedAllocator{}, nil
	}
	return nil, fmt.Errorf("unknown memory kind %d", kind)
}

type heapAllocator struct{}

func (heapAllocator) allocate(size int) ([]byte, func() error, error) {
	// Allocate words so every element type up to 8 bytes is aligned.
	words := make([]uint64, (size+7)/8)
	data := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), size)
	return data, func() error { return nil }, nil
}

type mappedAllocator struct{}

func (mappedAllocator) allocate(size int) ([]byte, func() error, error) {
	m, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("map %d bytes: %w", size, err)
	}
	prefaultRegion(m)
	return []byte(m), m.Unmap, nil
}

// view reinterprets a raw region as n elements of T.
func view[T Element](raw []byte, n int) []T {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(raw))), n)
}
