// Package queue implements an unbounded FIFO queue with separate head and
// tail locks.
//
// Any number of goroutines may Push concurrently. A single goroutine is
// expected to TryPop; producers and the consumer only contend on the tail
// lock when the queue is empty or nearly so. The queue is unbounded; callers
// that need a capacity check it against Len before pushing.
package queue
