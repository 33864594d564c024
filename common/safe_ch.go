package common

import (
	"context"
	"errors"
	"sync"
)

var errChClosed = errors.New("channel already closed")

// SafeCh is a close-safe hand-off channel. Writers block until the
// consumer takes the value or ctx is done; the lock is never held across
// the send itself. Close must only be called once all writers stopped.
type SafeCh[T any] struct {
	ch     chan T
	closed bool
	m      sync.Mutex
}

func MakeSafeCh[T any](size int) *SafeCh[T] {
	return &SafeCh[T]{
		ch: make(chan T, size),
	}
}

func (sch *SafeCh[T]) Close() error {
	sch.m.Lock()
	defer sch.m.Unlock()

	if sch.closed {
		return errChClosed
	}

	close(sch.ch)
	sch.closed = true

	return nil
}

func (sch *SafeCh[T]) ReadCh() <-chan T {
	return sch.ch
}

func (sch *SafeCh[T]) Write(ctx context.Context, obj T) error {
	sch.m.Lock()

	if sch.closed {
		sch.m.Unlock()

		return errChClosed
	}

	sch.m.Unlock()

	select {
	case sch.ch <- obj:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
