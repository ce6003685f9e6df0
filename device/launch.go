package device

import (
	"errors"
	"sync"
	"time"
)

// Launch describes one dispatch: Body runs once per worker, Workers workers
// in total, grouped into cohorts of CohortSize.
type Launch struct {
	// Name identifies the kernel in logs, hooks and errors.
	Name string

	// Workers is the total worker count; it must be a multiple of CohortSize.
	Workers int

	// CohortSize is the number of workers that share memory and a barrier.
	CohortSize int

	// SharedBytes declares the shared memory NewShared allocates. It is
	// checked against the device limit before any worker runs.
	SharedBytes int

	// NewShared returns fresh shared memory for one cohort. Optional.
	NewShared func() any

	Body func(w *Worker)
}

// Cohorts returns the number of cohorts the launch spans.
func (l Launch) Cohorts() int {
	if l.CohortSize <= 0 {
		return 0
	}
	return l.Workers / l.CohortSize
}

// DispatchEvent reports the outcome of one launch.
type DispatchEvent struct {
	Name       string
	Workers    int
	CohortSize int
	Cohorts    int
	Duration   time.Duration
	Err        error
}

// Worker is the per-worker view of a running launch.
type Worker struct {
	local int
	c     *cohort
}

// LocalID returns the worker index within its cohort.
func (w *Worker) LocalID() int { return w.local }

// CohortID returns the cohort index within the launch.
func (w *Worker) CohortID() int { return w.c.id }

// CohortSize returns the number of workers per cohort.
func (w *Worker) CohortSize() int { return w.c.size }

// NumCohorts returns the number of cohorts in the launch.
func (w *Worker) NumCohorts() int { return w.c.numCohorts }

// GlobalID returns the worker index within the launch.
func (w *Worker) GlobalID() int { return w.c.id*w.c.size + w.local }

// GlobalSize returns the total number of workers in the launch.
func (w *Worker) GlobalSize() int { return w.c.numCohorts * w.c.size }

// Shared returns the cohort's shared memory as created by Launch.NewShared.
func (w *Worker) Shared() any { return w.c.shared }

// Barrier blocks until every live worker of the cohort reaches it. Writes to
// shared or device memory made before the barrier are visible to all
// workers of the cohort after it.
func (w *Worker) Barrier() { w.c.barrier.await() }

// Shared returns the cohort's shared memory as a []T. It returns nil when the
// launch allocated no shared memory or a different type.
func Shared[T any](w *Worker) []T {
	s, _ := w.c.shared.([]T)
	return s
}

type cohort struct {
	id         int
	size       int
	numCohorts int
	shared     any
	barrier    *barrier
}

// errBarrierBroken unwinds workers blocked in a barrier after another worker
// of the same cohort failed.
var errBarrierBroken = errors.New("cohort barrier broken")

// barrier is a reusable cohort barrier. Workers that return leave it, so
// the remaining workers are not blocked on them.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	arrived int
	gen     uint64
	broken  bool
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) await() {
	b.mu.Lock()
	if b.broken {
		b.mu.Unlock()
		panic(errBarrierBroken)
	}
	gen := b.gen
	b.arrived++
	if b.arrived == b.parties {
		b.trip()
		b.mu.Unlock()
		return
	}
	for gen == b.gen && !b.broken {
		b.cond.Wait()
	}
	broken := gen == b.gen
	b.mu.Unlock()
	if broken {
		panic(errBarrierBroken)
	}
}

// leave removes an exiting worker. A failed worker breaks the barrier.
func (b *barrier) leave(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parties--
	if failed {
		b.broken = true
		b.cond.Broadcast()
		return
	}
	if b.arrived > 0 && b.arrived == b.parties {
		b.trip()
	}
}

// trip releases the current generation. Caller holds mu.
func (b *barrier) trip() {
	b.arrived = 0
	b.gen++
	b.cond.Broadcast()
}
