package dispatcher

import (
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

func idle[K comparable, V any](s *stream[K, V]) bool {
	return s.consumer.Load() == nil && s.q.Empty()
}

// Evict removes the stream for key if it has no consumer and nothing queued.
// Pushes and subscriptions hold the read lock for their whole update, so the
// write lock taken here guarantees none is half-applied to the evicted stream.
func (e *Engine[K, V]) Evict(key K) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.streams[key]
	if !ok || !idle(s) {
		return false
	}
	delete(e.streams, key)
	e.evicted.Add(1)
	e.metrics.ObserveEvicted(1)
	e.metrics.ObserveKeys(len(e.streams))
	return true
}

// EvictIdle removes every idle stream and returns how many were removed.
func (e *Engine[K, V]) EvictIdle() int {
	e.mu.Lock()
	n := 0
	for k, s := range e.streams {
		if idle(s) {
			delete(e.streams, k)
			n++
		}
	}
	keys := len(e.streams)
	e.mu.Unlock()

	if n > 0 {
		e.evicted.Add(uint64(n))
		e.metrics.ObserveEvicted(n)
		e.metrics.ObserveKeys(keys)
		e.logger.Debug("dispatcher.evict", logpkg.Int("evicted", n), logpkg.Int("keys", keys))
	}
	return n
}
