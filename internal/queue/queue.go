package queue

import (
	"sync"
	"sync/atomic"
)

type node[T any] struct {
	value T
	next  *node[T]
}

// Queue is a two-lock linked FIFO. head always points at a sentinel; the
// first live value sits in head.next.
type Queue[T any] struct {
	headMu sync.Mutex
	head   *node[T]

	tailMu sync.Mutex
	tail   *node[T]

	size atomic.Int64
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	sentinel := &node[T]{}
	return &Queue[T]{head: sentinel, tail: sentinel}
}

// Push appends v. It never blocks on the consumer side.
func (q *Queue[T]) Push(v T) {
	n := &node[T]{value: v}
	q.tailMu.Lock()
	q.tail.next = n
	q.tail = n
	q.size.Add(1)
	q.tailMu.Unlock()
}

// TryPop removes and returns the oldest value, or reports false when empty.
// Only one goroutine may call TryPop at a time.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T

	q.headMu.Lock()
	defer q.headMu.Unlock()

	// head == tail is the only reliable emptiness test; head.next can be
	// mid-publication while a producer holds tailMu.
	q.tailMu.Lock()
	empty := q.head == q.tail
	q.tailMu.Unlock()
	if empty {
		return zero, false
	}

	next := q.head.next
	v := next.value
	next.value = zero
	q.head = next
	q.size.Add(-1)
	return v, true
}

// Len is an approximate count, safe to read without locks.
func (q *Queue[T]) Len() int { return int(q.size.Load()) }

// Empty reports whether Len is zero.
func (q *Queue[T]) Empty() bool { return q.size.Load() == 0 }
