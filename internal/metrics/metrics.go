// Package metrics exposes engine and storage observations as Prometheus
// metrics on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dispatch"

// Metrics implements dispatcher.MetricsHook and pebblestore.MetricsHook.
type Metrics struct {
	reg *prometheus.Registry

	pushed     *prometheus.CounterVec
	delivered  prometheus.Counter
	panics     prometheus.Counter
	evicted    prometheus.Counter
	keys       prometheus.Gauge
	sweepDur   prometheus.Histogram
	dropped    *prometheus.CounterVec
	storeOps   *prometheus.HistogramVec
	storeBytes *prometheus.CounterVec
}

// New builds the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		pushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushed_total",
			Help:      "Push attempts by result (accepted or rejected).",
		}, []string{"result"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivered_total",
			Help:      "Values handed to consumers.",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_panics_total",
			Help:      "Consumer panics recovered by the dispatcher.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_total",
			Help:      "Idle keys removed from the registry.",
		}),
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys",
			Help:      "Keys currently held by the registry.",
		}),
		sweepDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Time spent in one dispatcher sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_dropped_total",
			Help:      "Messages a subscription dropped: its buffer was full, or it ended before sending them.",
		}, []string{"transport"}),
		storeOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "op_duration_seconds",
			Help:      "Storage operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),
		storeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Bytes moved by storage operations.",
		}, []string{"op"}),
	}
	m.reg.MustRegister(
		m.pushed, m.delivered, m.panics, m.evicted, m.keys, m.sweepDur,
		m.dropped, m.storeOps, m.storeBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObservePush(accepted bool) {
	if accepted {
		m.pushed.WithLabelValues("accepted").Inc()
		return
	}
	m.pushed.WithLabelValues("rejected").Inc()
}

func (m *Metrics) ObserveSweep(elapsed time.Duration, delivered int) {
	m.sweepDur.Observe(elapsed.Seconds())
	if delivered > 0 {
		m.delivered.Add(float64(delivered))
	}
}

func (m *Metrics) ObserveConsumerPanic() { m.panics.Inc() }

func (m *Metrics) ObserveEvicted(n int) { m.evicted.Add(float64(n)) }

func (m *Metrics) ObserveKeys(n int) { m.keys.Set(float64(n)) }

// ObserveDropped counts n messages a subscription lost.
func (m *Metrics) ObserveDropped(transport string, n int) {
	m.dropped.WithLabelValues(transport).Add(float64(n))
}

func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.storeOps.WithLabelValues("write").Observe(elapsed.Seconds())
	m.storeBytes.WithLabelValues("write").Add(float64(bytes))
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storeOps.WithLabelValues("read").Observe(elapsed.Seconds())
	m.storeBytes.WithLabelValues("read").Add(float64(bytes))
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.storeOps.WithLabelValues("commit").Observe(elapsed.Seconds())
	m.storeBytes.WithLabelValues("commit").Add(float64(bytes))
}
