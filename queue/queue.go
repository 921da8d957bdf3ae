// Package queue implements the fixed-capacity FIFO used to hand packets from
// the dispatcher to the owner of a port. Queues never block and never grow
// after [Queue.Reset].
package queue

import (
	"errors"
	"sync"
)

var errZeroCapacity = errors.New("lcsp/queue: capacity must be greater than zero")

// Queue is a ring of elements safe for concurrent use. The zero value has no
// capacity and rejects every push until Reset is called.
type Queue[T any] struct {
	mu  sync.Mutex
	buf []T
	// off is the index of the oldest element in buf.
	off int
	// n is the number of queued elements. off+n may wrap around len(buf).
	n int
}

// Reset discards queued elements and sets the queue capacity. The backing
// buffer is reused when large enough.
func (q *Queue[T]) Reset(capacity int) error {
	if capacity <= 0 {
		return errZeroCapacity
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if cap(q.buf) >= capacity {
		q.buf = q.buf[:capacity]
		clear(q.buf)
	} else {
		q.buf = make([]T, capacity)
	}
	q.off = 0
	q.n = 0
	return nil
}

// TryPush appends v to the back of the queue. It returns false if the queue is full.
func (q *Queue[T]) TryPush(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == len(q.buf) {
		return false
	}
	end := q.off + q.n
	if end >= len(q.buf) {
		end -= len(q.buf)
	}
	q.buf[end] = v
	q.n++
	return true
}

// TryPop removes and returns the element at the front of the queue.
// ok is false when the queue is empty.
func (q *Queue[T]) TryPop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return v, false
	}
	var zero T
	v = q.buf[q.off]
	q.buf[q.off] = zero // Drop reference so popped element may be collected.
	q.off++
	if q.off == len(q.buf) {
		q.off = 0
	}
	q.n--
	if q.n == 0 {
		q.off = 0
	}
	return v, true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Cap returns the maximum number of elements the queue holds.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Free returns the number of elements that can be pushed before the queue is full.
func (q *Queue[T]) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.n
}
