package device

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/google/uuid"

	scanerrors "github.com/tamirms/radixscan/errors"
	"github.com/tamirms/radixscan/internal/logger"
)

// Info describes a device and its limits.
type Info struct {
	ID             uuid.UUID
	Name           string
	Memory         MemoryKind
	MaxCohortSize  int
	MaxSharedBytes int
	MemoryLimit    int64 // 0 = unlimited
	Concurrency    int
}

// Stats is a snapshot of device resource usage.
type Stats struct {
	LiveBuffers int
	BytesInUse  int64
	PeakBytes   int64
	Allocations uint64
	Dispatches  uint64
}

// allocation is one live device region. closed is shared with the Buffer
// handle so a Device.Close invalidates handles that outlive it.
type allocation struct {
	bytes   int64
	release func() error
	closed  atomic.Bool
}

// Device is a constructed execution context. All methods are safe for
// concurrent use; independent Scan and Sort calls may share one Device.
type Device struct {
	cfg  *config
	info Info
	log  logger.Logger
	mem  allocator

	live   *haxmap.Map[uint64, *allocation]
	nextID atomic.Uint64

	mu    sync.Mutex // guards inUse, peak
	inUse int64
	peak  int64

	allocations atomic.Uint64
	dispatches  atomic.Uint64
	closed      atomic.Bool
}

// Open creates a device context.
func Open(opts ...Option) (*Device, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.maxCohortSize < 1 {
		return nil, fmt.Errorf("%w: max cohort size %d", scanerrors.ErrUnsupportedConfiguration, cfg.maxCohortSize)
	}
	if cfg.maxSharedBytes < 0 {
		return nil, fmt.Errorf("%w: max shared bytes %d", scanerrors.ErrUnsupportedConfiguration, cfg.maxSharedBytes)
	}
	if cfg.memoryLimit < 0 {
		return nil, fmt.Errorf("%w: memory limit %d", scanerrors.ErrUnsupportedConfiguration, cfg.memoryLimit)
	}
	if cfg.concurrency < 1 {
		cfg.concurrency = 1
	}

	mem, err := newAllocator(cfg.memory)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scanerrors.ErrUnsupportedConfiguration, err)
	}

	id := uuid.New()
	d := &Device{
		cfg: cfg,
		info: Info{
			ID:             id,
			Name:           "cohort-cpu",
			Memory:         cfg.memory,
			MaxCohortSize:  cfg.maxCohortSize,
			MaxSharedBytes: cfg.maxSharedBytes,
			MemoryLimit:    cfg.memoryLimit,
			Concurrency:    cfg.concurrency,
		},
		log:  cfg.log.With("device", id.String()),
		mem:  mem,
		live: haxmap.New[uint64, *allocation](),
	}
	d.log.Debug("device opened",
		"memory", cfg.memory.String(),
		"max_cohort", cfg.maxCohortSize,
		"max_shared_bytes", cfg.maxSharedBytes,
		"concurrency", cfg.concurrency)
	return d, nil
}

// Info returns the device description.
func (d *Device) Info() Info {
	return d.info
}

// Stats returns a snapshot of resource usage.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	inUse, peak := d.inUse, d.peak
	d.mu.Unlock()
	return Stats{
		LiveBuffers: int(d.live.Len()),
		BytesInUse:  inUse,
		PeakBytes:   peak,
		Allocations: d.allocations.Load(),
		Dispatches:  d.dispatches.Load(),
	}
}

// Close releases every buffer that is still live. Leaked buffers are
// reported with ErrLeakedBuffers; their handles become closed.
// Safe to call multiple times.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	type liveEntry struct {
		id uint64
		a  *allocation
	}
	var entries []liveEntry
	d.live.ForEach(func(id uint64, a *allocation) bool {
		entries = append(entries, liveEntry{id, a})
		return true
	})
	slices.SortFunc(entries, func(a, b liveEntry) int {
		return cmp.Compare(a.id, b.id)
	})

	var errs []error
	for _, e := range entries {
		if err := d.release(e.id, e.a); err != nil {
			errs = append(errs, err)
		}
	}
	if len(entries) > 0 {
		d.log.Warn("device closed with live buffers", "count", len(entries))
		errs = append(errs, fmt.Errorf("%w: %d", scanerrors.ErrLeakedBuffers, len(entries)))
	}
	d.log.Debug("device closed", "dispatches", d.dispatches.Load(), "peak_bytes", d.Stats().PeakBytes)
	return errors.Join(errs...)
}

// reserve accounts for size bytes against the memory limit.
func (d *Device) reserve(size int64) error {
	if d.closed.Load() {
		return scanerrors.ErrDeviceClosed
	}
	if hook := d.cfg.beforeAlloc; hook != nil {
		if err := hook(size); err != nil {
			return fmt.Errorf("%w: %w", scanerrors.ErrAllocationFailure, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.memoryLimit > 0 && d.inUse+size > d.cfg.memoryLimit {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			scanerrors.ErrAllocationFailure, size, d.inUse, d.cfg.memoryLimit)
	}
	d.inUse += size
	d.peak = max(d.peak, d.inUse)
	return nil
}

func (d *Device) unreserve(size int64) {
	d.mu.Lock()
	d.inUse -= size
	d.mu.Unlock()
}

// allocate reserves and maps a region, registering it as live.
func (d *Device) allocate(size int64) (uint64, *allocation, []byte, error) {
	if err := d.reserve(size); err != nil {
		return 0, nil, nil, err
	}
	raw, release, err := d.mem.allocate(int(size))
	if err != nil {
		d.unreserve(size)
		return 0, nil, nil, fmt.Errorf("%w: %w", scanerrors.ErrAllocationFailure, err)
	}

	a := &allocation{bytes: size, release: release}
	id := d.nextID.Add(1)
	d.live.Set(id, a)
	d.allocations.Add(1)
	d.log.Debug("alloc", "id", id, "bytes", size)
	return id, a, raw, nil
}

// release frees a region. Only the first call for an allocation does work.
func (d *Device) release(id uint64, a *allocation) error {
	if a.closed.Swap(true) {
		return nil
	}
	d.live.Del(id)
	err := a.release()
	d.unreserve(a.bytes)
	d.log.Debug("free", "id", id, "bytes", a.bytes)
	return err
}
