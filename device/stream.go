package device

import (
	"context"
	"fmt"
	"sync"

	scanerrors "github.com/tamirms/radixscan/errors"
)

const streamQueueDepth = 64

// Stream is an in-order launch queue. Enqueue returns without waiting;
// launches execute one after another in submission order, so a launch
// always observes the writes of the launches enqueued before it.
// Synchronize is the host-side completion wait.
//
// After a launch fails, the remaining queued launches are skipped until the
// failure is collected by Synchronize.
type Stream struct {
	dev   *Device
	queue chan streamOp
	done  chan struct{}

	pending sync.WaitGroup

	mu  sync.Mutex // guards err
	err error

	closeMu sync.RWMutex // held shared while sending on queue
	closed  bool
}

type streamOp struct {
	ctx    context.Context
	launch Launch
}

// NewStream creates a stream bound to the device.
func (d *Device) NewStream() *Stream {
	s := &Stream{
		dev:   d,
		queue: make(chan streamOp, streamQueueDepth),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Stream) loop() {
	defer close(s.done)
	for op := range s.queue {
		s.mu.Lock()
		failed := s.err != nil
		s.mu.Unlock()

		if !failed {
			if err := s.dev.Dispatch(op.ctx, op.launch); err != nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
		}
		s.pending.Done()
	}
}

// Enqueue submits a launch. It blocks only when the queue is full.
func (s *Stream) Enqueue(ctx context.Context, l Launch) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: kernel %s enqueued on closed stream", scanerrors.ErrDispatchFailure, l.Name)
	}
	s.pending.Add(1)
	s.queue <- streamOp{ctx: ctx, launch: l}
	return nil
}

// Synchronize waits until every enqueued launch has finished and returns
// the first failure since the previous Synchronize.
func (s *Stream) Synchronize() error {
	s.pending.Wait()
	s.mu.Lock()
	err := s.err
	s.err = nil
	s.mu.Unlock()
	return err
}

// Close waits for queued launches and stops the stream.
// Safe to call multiple times.
func (s *Stream) Close() error {
	err := s.Synchronize()
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return err
	}
	s.closed = true
	close(s.queue)
	s.closeMu.Unlock()

	<-s.done
	return err
}
