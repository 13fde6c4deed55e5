package dispatcher

// Consumer receives values for the key it is subscribed to. Consume runs on
// the engine's dispatch goroutine, never concurrently with itself within one
// Engine, and may still be running for a value popped just before an
// Unsubscribe. Consume may push, subscribe and unsubscribe but must not call
// Close on its own Engine.
type Consumer[K comparable, V any] interface {
	Consume(key K, value V)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc[K comparable, V any] func(key K, value V)

func (f ConsumerFunc[K, V]) Consume(key K, value V) { f(key, value) }

// Pauser may be implemented by a Consumer that wants no more values for now.
// While Paused reports true the sweep pops nothing for the consumer's key, so
// queued values stay for whoever is bound next. Paused is called on the
// dispatch goroutine. Unpausing takes effect at the next wakeup.
type Pauser interface {
	Paused() bool
}

// binding boxes a Consumer so the stream can hold it in an atomic.Pointer.
type binding[K comparable, V any] struct {
	c Consumer[K, V]
	p Pauser
}

func newBinding[K comparable, V any](c Consumer[K, V]) *binding[K, V] {
	p, _ := c.(Pauser)
	return &binding[K, V]{c: c, p: p}
}

func (b *binding[K, V]) paused() bool { return b.p != nil && b.p.Paused() }
