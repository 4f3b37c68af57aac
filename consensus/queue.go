package consensus

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO that is safe for concurrent use. The networking
// layer pushes inbound messages and the round loop pops them. Pop blocks until
// an item arrives or the context is done.
type Queue[T any] struct {
	mtx   sync.Mutex
	items []T
	// signal has capacity one and is written to whenever an item is pushed so
	// that a blocked Pop wakes up without polling
	signal chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		signal: make(chan struct{}, 1),
	}
}

// Push appends items to the back of the queue
func (q *Queue[T]) Push(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mtx.Lock()
	q.items = append(q.items, items...)
	q.mtx.Unlock()
	q.notify()
}

// TryPop removes the item at the front of the queue without blocking
func (q *Queue[T]) TryPop() (T, bool) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// keep waking consumers while there is work left
		q.notify()
	}
	return item, true
}

// Pop removes the item at the front of the queue, waiting for one if the
// queue is empty. Items already queued are returned even if the context has
// expired; the context's error is only returned for an empty queue.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryPop(); ok {
			return item, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.signal:
		}
	}
}

// Drain removes and returns every queued item
func (q *Queue[T]) Drain() []T {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.items)
}

func (q *Queue[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
