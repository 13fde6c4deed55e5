// Package dispatcher implements the keyed dispatch engine.
//
// An Engine keeps one stream per key: a FIFO of pushed values and at most one
// bound Consumer. Producers call TryPush and never wait on consumers; a single
// background goroutine wakes on a coalescing signal, sweeps every stream that
// has a consumer, and delivers queued values in push order.
//
// # Registry locking
//
// Streams live in a map guarded by a sync.RWMutex. Lookups, pushes and
// (un)subscribes on an existing key hold the read lock. The write lock is
// taken only to create a stream (double-checked after a read-locked miss) or
// to evict an idle one. The sweep holds the read lock just long enough to
// snapshot the stream pointers and delivers outside any registry lock, so a
// Consumer may call back into the Engine.
//
// # Lifecycle
//
// Close stops the engine after one final sweep that starts after the stop
// request: every value accepted by TryPush before Close, on a key with a bound
// consumer, is delivered before Close returns. Values on keys without a
// consumer are dropped. Close must not be called from inside Consume.
package dispatcher
