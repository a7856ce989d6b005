package buffer

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a Queue after Close.
var ErrClosed = errors.New("buffer: closed")

// Queue is a bounded FIFO queue. TryPut never blocks, which makes it safe
// to call from timer callbacks and receive handlers. Put and Get block
// until there is room or an item, a Close, or the end of the context.
type Queue[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue returns a queue holding at most capacity items. It panics if
// capacity is not positive.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("buffer: queue capacity must be positive")
	}
	return &Queue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// TryPut enqueues v. It returns ErrFull when the queue is at capacity and
// ErrClosed after Close.
func (q *Queue[T]) TryPut(v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- v:
		return nil
	default:
		return ErrFull
	}
}

// Put enqueues v, waiting while the queue is full. It returns ErrClosed
// after Close and the context's error when ctx ends first.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	if err := q.TryPut(v); !errors.Is(err, ErrFull) {
		return err
	}
	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the oldest item. Items queued before Close are still
// delivered; once drained, Get returns ErrClosed.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	default:
	}
	select {
	case v := <-q.ch:
		return v, nil
	case <-q.done:
		select {
		case v := <-q.ch:
			return v, nil
		default:
		}
		var zero T
		return zero, ErrClosed
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet dequeues the oldest item without blocking. It reports false when
// the queue is empty.
func (q *Queue[T]) TryGet() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Close wakes all blocked Put and Get calls. It is safe to call more than once.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
