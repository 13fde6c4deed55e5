package dispatcher

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/dispatch/internal/queue"
	"github.com/rzbill/dispatch/internal/signal"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

type stream[K comparable, V any] struct {
	key      K
	q        *queue.Queue[V]
	consumer atomic.Pointer[binding[K, V]]
}

// Engine is a keyed dispatcher. Create one with New and release it with Close.
type Engine[K comparable, V any] struct {
	opts    Options
	logger  logpkg.Logger
	metrics MetricsHook

	mu      sync.RWMutex
	streams map[K]*stream[K, V]

	wake      *signal.Signal
	stopping  atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	// owned by the dispatch goroutine
	scratch []*stream[K, V]

	pushed    atomic.Uint64
	rejected  atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
	sweeps    atomic.Uint64
	evicted   atomic.Uint64
}

// New creates an Engine and starts its dispatch goroutine.
func New[K comparable, V any](opts Options) *Engine[K, V] {
	opts = opts.withDefaults()
	e := &Engine[K, V]{
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		streams: make(map[K]*stream[K, V]),
		wake:    signal.New(),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// withStream runs fn on the stream for key while holding the registry lock
// that found it. With create set, a missing stream is created under the write
// lock. It reports whether fn ran.
func (e *Engine[K, V]) withStream(key K, create bool, fn func(*stream[K, V])) bool {
	e.mu.RLock()
	if s, ok := e.streams[key]; ok {
		fn(s)
		e.mu.RUnlock()
		return true
	}
	e.mu.RUnlock()
	if !create {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopping.Load() {
		return false
	}
	s, ok := e.streams[key]
	if !ok {
		s = &stream[K, V]{key: key, q: queue.New[V]()}
		e.streams[key] = s
		e.metrics.ObserveKeys(len(e.streams))
	}
	fn(s)
	return true
}

// TrySubscribe binds c to key. It fails if another consumer is already bound,
// if c is nil, or after Close. Values already queued for key are delivered to
// c on the next sweep.
func (e *Engine[K, V]) TrySubscribe(key K, c Consumer[K, V]) bool {
	_, ok := e.Bind(key, c)
	return ok
}

// Bind is TrySubscribe returning a release func. Release unbinds c only if c
// is still the consumer bound to key, so it is safe to call after someone
// else has unsubscribed and rebound the key. It reports whether it unbound.
func (e *Engine[K, V]) Bind(key K, c Consumer[K, V]) (release func() bool, ok bool) {
	if c == nil || e.stopping.Load() {
		return nil, false
	}
	b := newBinding(c)
	e.withStream(key, true, func(s *stream[K, V]) {
		if e.stopping.Load() {
			return
		}
		ok = s.consumer.CompareAndSwap(nil, b)
	})
	if !ok {
		return nil, false
	}
	e.logger.Debug("dispatcher.subscribe", logpkg.Any("key", key))
	e.wake.Notify()

	release = func() bool {
		var released bool
		e.withStream(key, false, func(s *stream[K, V]) {
			released = s.consumer.CompareAndSwap(b, nil)
		})
		if released {
			e.logger.Debug("dispatcher.unsubscribe", logpkg.Any("key", key))
		}
		return released
	}
	return release, true
}

// Unsubscribe clears the consumer bound to key. Queued values are kept for
// the next subscriber. Unknown keys are ignored.
func (e *Engine[K, V]) Unsubscribe(key K) { e.Detach(key) }

// Detach is Unsubscribe returning the consumer it unbound, if any.
func (e *Engine[K, V]) Detach(key K) (Consumer[K, V], bool) {
	var old *binding[K, V]
	e.withStream(key, false, func(s *stream[K, V]) {
		old = s.consumer.Swap(nil)
	})
	if old == nil {
		return nil, false
	}
	e.logger.Debug("dispatcher.unsubscribe", logpkg.Any("key", key))
	return old.c, true
}

// TryPush enqueues v for key unless the key's queue has reached
// MaxQueueCapacity or the engine is closed. It never blocks on consumers.
func (e *Engine[K, V]) TryPush(key K, v V) bool {
	if e.stopping.Load() {
		e.reject()
		return false
	}
	var accepted bool
	e.withStream(key, true, func(s *stream[K, V]) {
		if e.stopping.Load() || s.q.Len() >= e.opts.MaxQueueCapacity {
			return
		}
		s.q.Push(v)
		accepted = true
	})
	if !accepted {
		e.reject()
		return false
	}
	e.pushed.Add(1)
	e.metrics.ObservePush(true)
	e.wake.Notify()
	return true
}

func (e *Engine[K, V]) reject() {
	e.rejected.Add(1)
	e.metrics.ObservePush(false)
}

// Close stops the dispatch goroutine after a final sweep and waits for it.
// Subsequent pushes and subscriptions fail. Close is idempotent.
func (e *Engine[K, V]) Close() {
	e.closeOnce.Do(func() {
		// Taking the write lock orders every in-flight push before the
		// final sweep.
		e.mu.Lock()
		e.stopping.Store(true)
		e.mu.Unlock()
		e.wake.Notify()
		<-e.done
		e.logger.Info("dispatcher.closed",
			logpkg.Uint64("pushed", e.pushed.Load()),
			logpkg.Uint64("delivered", e.delivered.Load()),
			logpkg.Uint64("rejected", e.rejected.Load()),
			logpkg.Uint64("panics", e.panics.Load()),
		)
	})
}

// Done is closed once the dispatch goroutine has exited.
func (e *Engine[K, V]) Done() <-chan struct{} { return e.done }

func (e *Engine[K, V]) run() {
	defer close(e.done)

	var evictC <-chan time.Time
	if e.opts.EvictIdle {
		t := time.NewTicker(e.opts.EvictInterval)
		defer t.Stop()
		evictC = t.C
	}

	for {
		select {
		case <-e.wake.C():
		case <-evictC:
			e.EvictIdle()
			continue
		}
		// Read the flag before sweeping so a stop requested during this
		// sweep still gets a full sweep of its own.
		stop := e.stopping.Load()
		e.sweep()
		if stop {
			return
		}
	}
}

func (e *Engine[K, V]) sweep() {
	start := time.Now()

	e.mu.RLock()
	for _, s := range e.streams {
		if b := s.consumer.Load(); b != nil && !b.paused() && !s.q.Empty() {
			e.scratch = append(e.scratch, s)
		}
	}
	e.mu.RUnlock()

	delivered := 0
	for i, s := range e.scratch {
		delivered += e.drain(s)
		e.scratch[i] = nil
	}
	e.scratch = e.scratch[:0]

	e.sweeps.Add(1)
	e.metrics.ObserveSweep(time.Since(start), delivered)
}

// drain delivers from s until its queue is momentarily empty or its consumer
// goes away or pauses.
func (e *Engine[K, V]) drain(s *stream[K, V]) int {
	n := 0
	for {
		b := s.consumer.Load()
		if b == nil || b.paused() {
			return n
		}
		v, ok := s.q.TryPop()
		if !ok {
			return n
		}
		if e.deliver(s.key, b.c, v) {
			n++
		}
	}
}

func (e *Engine[K, V]) deliver(key K, c Consumer[K, V], v V) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			e.panics.Add(1)
			e.metrics.ObserveConsumerPanic()
			e.logger.Error("dispatcher.consumer_panic",
				logpkg.Any("key", key),
				logpkg.Any("panic", r),
			)
		}
	}()
	c.Consume(key, v)
	e.delivered.Add(1)
	return true
}
