package dispatcher

import (
	"time"

	logpkg "github.com/rzbill/dispatch/pkg/log"
)

const (
	// DefaultMaxQueueCapacity bounds each key's queue when Options leaves it unset.
	DefaultMaxQueueCapacity = 10000
	// DefaultEvictInterval is used when EvictIdle is set without an interval.
	DefaultEvictInterval = time.Minute
)

// Options configures an Engine.
type Options struct {
	// MaxQueueCapacity is the soft per-key bound checked by TryPush.
	// Concurrent pushers may overshoot it by at most their number.
	MaxQueueCapacity int
	// Logger defaults to a component logger.
	Logger logpkg.Logger
	// Metrics is optional.
	Metrics MetricsHook
	// EvictIdle enables periodic removal of streams that have no consumer and
	// nothing queued.
	EvictIdle     bool
	EvictInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxQueueCapacity <= 0 {
		o.MaxQueueCapacity = DefaultMaxQueueCapacity
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewLogger().With(logpkg.Component("dispatcher"))
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.EvictIdle && o.EvictInterval <= 0 {
		o.EvictInterval = DefaultEvictInterval
	}
	return o
}

// MetricsHook observes engine activity. Implementations must be safe for
// concurrent use and cheap; they run on the push and sweep paths.
type MetricsHook interface {
	ObservePush(accepted bool)
	ObserveSweep(elapsed time.Duration, delivered int)
	ObserveConsumerPanic()
	ObserveEvicted(n int)
	ObserveKeys(n int)
}

// NoopMetrics is used when no hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObservePush(bool)                {}
func (NoopMetrics) ObserveSweep(time.Duration, int) {}
func (NoopMetrics) ObserveConsumerPanic()           {}
func (NoopMetrics) ObserveEvicted(int)              {}
func (NoopMetrics) ObserveKeys(int)                 {}
