package device

import (
	"log/slog"
	"runtime"

	"github.com/tamirms/radixscan/internal/logger"
)

const (
	// defaultMaxCohortSize mirrors the common hardware limit on workers per cohort.
	defaultMaxCohortSize = 1024

	// defaultMaxSharedBytes is the per-cohort shared memory budget.
	defaultMaxSharedBytes = 48 << 10
)

// Option is a functional option for configuring a Device.
type Option func(*config)

type config struct {
	maxCohortSize  int
	maxSharedBytes int
	memoryLimit    int64 // 0 = unlimited
	concurrency    int
	memory         MemoryKind
	log            logger.Logger

	beforeDispatch func(Launch) error
	afterDispatch  func(DispatchEvent)
	beforeAlloc    func(bytes int64) error
}

func defaultConfig() *config {
	return &config{
		maxCohortSize:  defaultMaxCohortSize,
		maxSharedBytes: defaultMaxSharedBytes,
		concurrency:    runtime.GOMAXPROCS(0),
		memory:         MemoryHeap,
		log:            logger.Discard(),
	}
}

// WithMaxCohortSize sets the largest cohort a launch may request.
func WithMaxCohortSize(n int) Option {
	return func(c *config) {
		c.maxCohortSize = n
	}
}

// WithMaxSharedBytes sets the per-cohort shared memory limit.
func WithMaxSharedBytes(n int) Option {
	return func(c *config) {
		c.maxSharedBytes = n
	}
}

// WithMemoryLimit caps the total bytes of live buffers. Allocations beyond
// the cap fail with ErrAllocationFailure. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(c *config) {
		c.memoryLimit = bytes
	}
}

// WithConcurrency sets how many cohorts may execute at the same time.
// Defaults to GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// WithMemory selects the memory backend.
func WithMemory(kind MemoryKind) Option {
	return func(c *config) {
		c.memory = kind
	}
}

// WithLogger sets the structured logger. Dispatches and allocations are
// logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.log = logger.FromSlog(l)
	}
}

// WithBeforeDispatch installs a hook that runs before every launch. A non-nil
// error rejects the launch with ErrDispatchFailure.
func WithBeforeDispatch(fn func(Launch) error) Option {
	return func(c *config) {
		c.beforeDispatch = fn
	}
}

// WithAfterDispatch installs a hook that receives the timing and outcome of
// every launch.
func WithAfterDispatch(fn func(DispatchEvent)) Option {
	return func(c *config) {
		c.afterDispatch = fn
	}
}

// WithBeforeAlloc installs a hook that runs before every allocation. A
// non-nil error fails the allocation with ErrAllocationFailure.
func WithBeforeAlloc(fn func(bytes int64) error) Option {
	return func(c *config) {
		c.beforeAlloc = fn
	}
}
