package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	scanerrors "github.com/tamirms/radixscan/errors"
)

// Dispatch runs a launch to completion: it is dispatch followed by
// waitForCompletion. Every write made by the launch is visible to the caller
// and to later dispatches once Dispatch returns.
//
// Cohorts run concurrently, at most Info().Concurrency at a time. The context
// is checked before each cohort starts; a cohort that has started runs to
// completion.
func (d *Device) Dispatch(ctx context.Context, l Launch) error {
	if d.closed.Load() {
		return scanerrors.ErrDeviceClosed
	}
	if err := d.validateLaunch(l); err != nil {
		return err
	}
	if hook := d.cfg.beforeDispatch; hook != nil {
		if err := hook(l); err != nil {
			return fmt.Errorf("%w: kernel %s rejected: %w", scanerrors.ErrDispatchFailure, l.Name, err)
		}
	}

	start := time.Now()
	err := d.run(ctx, l)
	elapsed := time.Since(start)
	d.dispatches.Add(1)

	d.log.Debug("dispatch",
		"kernel", l.Name,
		"workers", l.Workers,
		"cohort", l.CohortSize,
		"elapsed", elapsed,
		"err", err)
	if hook := d.cfg.afterDispatch; hook != nil {
		hook(DispatchEvent{
			Name:       l.Name,
			Workers:    l.Workers,
			CohortSize: l.CohortSize,
			Cohorts:    l.Cohorts(),
			Duration:   elapsed,
			Err:        err,
		})
	}
	return err
}

// validateLaunch rejects launches the engine cannot execute. No worker runs
// when it fails.
func (d *Device) validateLaunch(l Launch) error {
	switch {
	case l.Body == nil:
		return fmt.Errorf("%w: kernel %s has no body", scanerrors.ErrDispatchFailure, l.Name)
	case l.CohortSize < 1 || l.CohortSize > d.cfg.maxCohortSize:
		return fmt.Errorf("%w: kernel %s cohort size %d outside [1, %d]",
			scanerrors.ErrDispatchFailure, l.Name, l.CohortSize, d.cfg.maxCohortSize)
	case l.Workers < 0 || l.Workers%l.CohortSize != 0:
		return fmt.Errorf("%w: kernel %s worker count %d is not a multiple of cohort size %d",
			scanerrors.ErrDispatchFailure, l.Name, l.Workers, l.CohortSize)
	case l.SharedBytes > d.cfg.maxSharedBytes:
		return fmt.Errorf("%w: kernel %s needs %d shared bytes, limit %d",
			scanerrors.ErrDispatchFailure, l.Name, l.SharedBytes, d.cfg.maxSharedBytes)
	}
	return nil
}

func (d *Device) run(ctx context.Context, l Launch) error {
	numCohorts := l.Cohorts()
	if numCohorts == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.concurrency)
	for id := range numCohorts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return runCohort(l, id, numCohorts)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// A cancellation observed by the spawn loop leaves no goroutine error.
	return ctx.Err()
}

// runCohort executes one cohort: CohortSize goroutines sharing memory and a
// barrier.
func runCohort(l Launch, id, numCohorts int) error {
	c := &cohort{
		id:         id,
		size:       l.CohortSize,
		numCohorts: numCohorts,
		barrier:    newBarrier(l.CohortSize),
	}
	if l.NewShared != nil {
		c.shared = l.NewShared()
	}

	if l.CohortSize == 1 {
		if err := c.runWorker(l.Body, 0); err != nil {
			return fmt.Errorf("%w: kernel %s cohort %d: %w", scanerrors.ErrDispatchFailure, l.Name, id, err)
		}
		return nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		failure error
	)
	for local := range l.CohortSize {
		wg.Go(func() {
			err := c.runWorker(l.Body, local)
			if err == nil {
				return
			}
			mu.Lock()
			// Keep the root cause, not the barrier fallout it triggered.
			if failure == nil || errors.Is(failure, errBarrierBroken) {
				failure = err
			}
			mu.Unlock()
		})
	}
	wg.Wait()

	if failure != nil {
		return fmt.Errorf("%w: kernel %s cohort %d: %w", scanerrors.ErrDispatchFailure, l.Name, id, failure)
	}
	return nil
}

// runWorker runs the body for one worker, converting a panic into an error.
func (c *cohort) runWorker(body func(*Worker), local int) (err error) {
	w := &Worker{local: local, c: c}
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			default:
				err = fmt.Errorf("worker %d panicked: %v", local, v)
			}
		}
		c.barrier.leave(err != nil)
	}()
	body(w)
	return nil
}
