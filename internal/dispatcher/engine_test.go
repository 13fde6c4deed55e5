package dispatcher

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	logpkg "github.com/rzbill/dispatch/pkg/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder[K comparable, V any] struct {
	mu     sync.Mutex
	values []V
	keys   []K
}

func (r *recorder[K, V]) Consume(key K, v V) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder[K, V]) got() []V {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]V(nil), r.values...)
}

func (r *recorder[K, V]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

func newTestEngine[K comparable, V any](t *testing.T, opts Options) *Engine[K, V] {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	e := New[K, V](opts)
	t.Cleanup(e.Close)
	return e
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPushBeforeSubscribe(t *testing.T) {
	e := newTestEngine[string, string](t, Options{})
	c := &recorder[string, string]{}

	if !e.TryPush("one", "first_value") || !e.TryPush("one", "second_value") {
		t.Fatalf("push failed")
	}
	if !e.TrySubscribe("one", c) {
		t.Fatalf("subscribe failed")
	}
	e.Close()

	if diff := cmp.Diff([]string{"first_value", "second_value"}, c.got()); diff != "" {
		t.Fatalf("delivered mismatch (-want +got):\n%s", diff)
	}
}

func TestPushAfterSubscribe(t *testing.T) {
	e := newTestEngine[int, float64](t, Options{})
	c := &recorder[int, float64]{}

	if !e.TrySubscribe(1, c) {
		t.Fatalf("subscribe failed")
	}
	for _, v := range []float64{2.2, 2.3, 2.4} {
		if !e.TryPush(1, v) {
			t.Fatalf("push %v failed", v)
		}
	}
	e.Close()

	if diff := cmp.Diff([]float64{2.2, 2.3, 2.4}, c.got()); diff != "" {
		t.Fatalf("delivered mismatch (-want +got):\n%s", diff)
	}
}

func TestPushSubscribePushKeepsOrder(t *testing.T) {
	e := newTestEngine[int, float64](t, Options{})
	c := &recorder[int, float64]{}

	want := []float64{3.2, 3.3, 3.4, 4.2, 4.3, 4.4}
	for _, v := range want[:3] {
		e.TryPush(2, v)
	}
	if !e.TrySubscribe(2, c) {
		t.Fatalf("subscribe failed")
	}
	for _, v := range want[3:] {
		e.TryPush(2, v)
	}
	e.Close()

	if diff := cmp.Diff(want, c.got()); diff != "" {
		t.Fatalf("delivered mismatch (-want +got):\n%s", diff)
	}
}

func TestOnlySubscribedKeyDelivers(t *testing.T) {
	e := newTestEngine[int, float64](t, Options{})
	c := &recorder[int, float64]{}

	e.TrySubscribe(2, c)
	e.TryPush(2, 3.2)
	for k, v := range map[int]float64{3: 3.3, 4: 3.4, 5: 4.2, 6: 4.3, 7: 4.4} {
		if !e.TryPush(k, v) {
			t.Fatalf("push to %d failed", k)
		}
	}
	e.Close()

	if diff := cmp.Diff([]float64{3.2}, c.got()); diff != "" {
		t.Fatalf("delivered mismatch (-want +got):\n%s", diff)
	}
	for _, k := range c.keys {
		if k != 2 {
			t.Fatalf("consumer saw key %d", k)
		}
	}
}

func TestCapacityBackpressure(t *testing.T) {
	e := newTestEngine[int, float64](t, Options{MaxQueueCapacity: 5})
	for i := 0; i < 5; i++ {
		if !e.TryPush(1, float64(i)) {
			t.Fatalf("push %d rejected under capacity", i)
		}
	}
	if e.TryPush(1, 99) {
		t.Fatalf("push over capacity accepted")
	}
	// Other keys have their own bound.
	if !e.TryPush(2, 1) {
		t.Fatalf("push to second key rejected")
	}
	ks, ok := e.KeyStats(1)
	if !ok || ks.Queued != 5 || ks.Subscribed {
		t.Fatalf("KeyStats = %+v, %v", ks, ok)
	}
	if st := e.Stats(); st.Rejected != 1 || st.Pushed != 6 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCapacityFreedByDelivery(t *testing.T) {
	e := newTestEngine[int, int](t, Options{MaxQueueCapacity: 2})
	c := &recorder[int, int]{}
	e.TrySubscribe(1, c)
	for i := 0; i < 10; i++ {
		for !e.TryPush(1, i) {
			time.Sleep(time.Millisecond)
		}
	}
	e.Close()
	if c.count() != 10 {
		t.Fatalf("delivered %d", c.count())
	}
}

func TestConcurrentProducersOneKey(t *testing.T) {
	e := newTestEngine[int, float64](t, Options{})
	c := &recorder[int, float64]{}
	e.TrySubscribe(1, c)

	var wg sync.WaitGroup
	for _, v := range []float64{1.6, 1.7} {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				e.TryPush(1, v)
			}
		}(v)
	}
	wg.Wait()
	e.Close()

	if c.count() != 2000 {
		t.Fatalf("delivered %d, want 2000", c.count())
	}
}

func TestTwoConsumersIsolated(t *testing.T) {
	e := newTestEngine[int, float64](t, Options{})
	c1 := &recorder[int, float64]{}
	c2 := &recorder[int, float64]{}

	e.TryPush(1, 3.2)
	e.TryPush(1, 3.3)
	e.TryPush(1, 3.4)
	e.TryPush(2, 4.2)
	e.TryPush(2, 4.8)
	e.TryPush(3, 4.3)
	if !e.TrySubscribe(1, c1) || !e.TrySubscribe(2, c2) {
		t.Fatalf("subscribe failed")
	}
	e.Close()

	if diff := cmp.Diff([]float64{3.2, 3.3, 3.4}, c1.got()); diff != "" {
		t.Fatalf("consumer 1 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{4.2, 4.8}, c2.got()); diff != "" {
		t.Fatalf("consumer 2 (-want +got):\n%s", diff)
	}
}

func TestSubscribeTwiceFails(t *testing.T) {
	e := newTestEngine[int, float64](t, Options{})
	c1 := &recorder[int, float64]{}
	c2 := &recorder[int, float64]{}
	if !e.TrySubscribe(1, c1) {
		t.Fatalf("first subscribe failed")
	}
	if e.TrySubscribe(1, c2) {
		t.Fatalf("second subscribe succeeded")
	}
	e.TryPush(1, 1)
	e.Close()
	if c1.count() != 1 || c2.count() != 0 {
		t.Fatalf("c1=%d c2=%d", c1.count(), c2.count())
	}
}

func TestRacingSubscribersOneWins(t *testing.T) {
	e := newTestEngine[string, int](t, Options{})
	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if e.TrySubscribe("k", &recorder[string, int]{}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d", wins)
	}
}

func TestNilConsumerRejected(t *testing.T) {
	e := newTestEngine[int, int](t, Options{})
	if e.TrySubscribe(1, nil) {
		t.Fatalf("nil consumer accepted")
	}
}

func TestUnsubscribePausesDelivery(t *testing.T) {
	e := newTestEngine[int, float64](t, Options{})
	c := &recorder[int, float64]{}

	e.TrySubscribe(1, c)
	e.TryPush(1, 1.1)
	waitFor(t, func() bool { return c.count() == 1 })
	e.Unsubscribe(1)
	e.TryPush(1, 1.2)
	time.Sleep(20 * time.Millisecond)
	if c.count() != 1 {
		t.Fatalf("delivered after unsubscribe: %d", c.count())
	}

	// The buffered value goes to the next subscriber.
	c2 := &recorder[int, float64]{}
	if !e.TrySubscribe(1, c2) {
		t.Fatalf("resubscribe failed")
	}
	e.Close()
	if diff := cmp.Diff([]float64{1.2}, c2.got()); diff != "" {
		t.Fatalf("resubscriber (-want +got):\n%s", diff)
	}
	if c.count() != 1 {
		t.Fatalf("old consumer received more: %d", c.count())
	}
}

func TestUnsubscribeUnknownKey(t *testing.T) {
	e := newTestEngine[int, float64](t, Options{})
	e.Unsubscribe(1)
	if _, ok := e.KeyStats(1); ok {
		t.Fatalf("unsubscribe created a stream")
	}
	if st := e.Stats(); st.Keys != 0 {
		t.Fatalf("keys = %d", st.Keys)
	}
}

func TestManyProducersManySubscribers(t *testing.T) {
	e := newTestEngine[string, string](t, Options{})
	c1 := &recorder[string, string]{}
	c2 := &recorder[string, string]{}
	c3 := &recorder[string, string]{}
	e.TrySubscribe("one", c1)
	e.TrySubscribe("two", c2)
	e.TrySubscribe("three", c3)

	produce := func(keys []string, value string, amount int, wg *sync.WaitGroup) {
		defer wg.Done()
		for i := 0; i < amount; i++ {
			e.TryPush(keys[i%len(keys)], value)
		}
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go produce([]string{"one", "two", "three"}, "first_value", 10000, &wg)
	go produce([]string{"one", "two"}, "second_value", 10000, &wg)
	wg.Wait()
	e.Close()

	if sum := c1.count() + c2.count() + c3.count(); sum != 20000 {
		t.Fatalf("delivered %d, want 20000", sum)
	}
}

// Values are handed over as the same instance that was pushed.
func TestValueIdentityPreserved(t *testing.T) {
	type payload struct{ n int }
	e := newTestEngine[int, *payload](t, Options{})
	c := &recorder[int, *payload]{}

	p := &payload{n: 1}
	e.TryPush(1, p)
	e.TrySubscribe(1, c)
	e.Close()

	got := c.got()
	if len(got) != 1 || got[0] != p {
		t.Fatalf("expected the pushed pointer back, got %v", got)
	}
}

func TestPerKeyOrderUnderConcurrency(t *testing.T) {
	e := newTestEngine[int, int](t, Options{})
	const keys, per = 8, 500
	recs := make([]*recorder[int, int], keys)
	for k := range recs {
		recs[k] = &recorder[int, int]{}
		e.TrySubscribe(k, recs[k])
	}
	var wg sync.WaitGroup
	for k := 0; k < keys; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				e.TryPush(k, i)
			}
		}(k)
	}
	wg.Wait()
	e.Close()

	for k, r := range recs {
		got := r.got()
		if len(got) != per {
			t.Fatalf("key %d: %d values", k, len(got))
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("key %d: position %d has %d", k, i, v)
			}
		}
	}
}

func TestConsumerMayReenterEngine(t *testing.T) {
	e := newTestEngine[string, int](t, Options{})
	echo := &recorder[string, int]{}
	e.TrySubscribe("echo", echo)

	e.TrySubscribe("in", ConsumerFunc[string, int](func(_ string, v int) {
		e.TryPush("echo", v*10)
		if v == 3 {
			e.Unsubscribe("in")
		}
	}))
	for i := 1; i <= 4; i++ {
		e.TryPush("in", i)
	}
	waitFor(t, func() bool { return echo.count() == 3 })
	e.Close()

	if diff := cmp.Diff([]int{10, 20, 30}, echo.got()); diff != "" {
		t.Fatalf("echo (-want +got):\n%s", diff)
	}
	if ks, _ := e.KeyStats("in"); ks.Queued != 1 || ks.Subscribed {
		t.Fatalf("in stats = %+v", ks)
	}
}

func TestConsumerPanicIsRecovered(t *testing.T) {
	e := newTestEngine[int, int](t, Options{})
	var (
		mu   sync.Mutex
		seen []int
	)
	e.TrySubscribe(1, ConsumerFunc[int, int](func(_ int, v int) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
		if v == 2 {
			panic("bad value")
		}
	}))
	for i := 1; i <= 3; i++ {
		e.TryPush(1, i)
	}
	e.Close()

	if diff := cmp.Diff([]int{1, 2, 3}, seen); diff != "" {
		t.Fatalf("seen (-want +got):\n%s", diff)
	}
	st := e.Stats()
	if st.Panics != 1 || st.Delivered != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestClosedEngineRejects(t *testing.T) {
	e := newTestEngine[int, int](t, Options{})
	e.Close()
	e.Close()
	if e.TryPush(1, 1) {
		t.Fatalf("push after close accepted")
	}
	if e.TrySubscribe(1, &recorder[int, int]{}) {
		t.Fatalf("subscribe after close accepted")
	}
	select {
	case <-e.Done():
	default:
		t.Fatalf("done not closed")
	}
}

func TestCloseWithoutConsumerDropsQuietly(t *testing.T) {
	e := newTestEngine[int, int](t, Options{})
	e.TryPush(1, 1)
	e.Close()
	if st := e.Stats(); st.Delivered != 0 || st.Queued != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

type countingMetrics struct {
	mu                                 sync.Mutex
	accepted, rejected, panics, evicts int
	keys                               int
	sweeps                             int
}

func (m *countingMetrics) ObservePush(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.accepted++
	} else {
		m.rejected++
	}
}

func (m *countingMetrics) ObserveSweep(time.Duration, int) {
	m.mu.Lock()
	m.sweeps++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveConsumerPanic() {
	m.mu.Lock()
	m.panics++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveEvicted(n int) {
	m.mu.Lock()
	m.evicts += n
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveKeys(n int) {
	m.mu.Lock()
	m.keys = n
	m.mu.Unlock()
}

func TestMetricsHookObservesActivity(t *testing.T) {
	m := &countingMetrics{}
	e := newTestEngine[int, int](t, Options{MaxQueueCapacity: 1, Metrics: m})
	e.TryPush(1, 1)
	e.TryPush(1, 2)
	e.TryPush(2, 1)
	e.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accepted != 2 || m.rejected != 1 || m.keys != 2 || m.sweeps == 0 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestBindReleaseOnlyOwnBinding(t *testing.T) {
	e := newTestEngine[string, int](t, Options{})
	first := &recorder[string, int]{}
	release, ok := e.Bind("k", first)
	if !ok {
		t.Fatalf("bind failed")
	}
	e.Unsubscribe("k")

	second := &recorder[string, int]{}
	if !e.TrySubscribe("k", second) {
		t.Fatalf("rebind failed")
	}
	if release() {
		t.Fatalf("stale release unbound the new consumer")
	}
	e.TryPush("k", 1)
	e.Close()
	if second.count() != 1 || first.count() != 0 {
		t.Fatalf("first=%d second=%d", first.count(), second.count())
	}
}

func TestBindRelease(t *testing.T) {
	e := newTestEngine[string, int](t, Options{})
	release, ok := e.Bind("k", &recorder[string, int]{})
	if !ok || !release() {
		t.Fatalf("bind/release failed")
	}
	if release() {
		t.Fatalf("second release should be a no-op")
	}
	if ks, _ := e.KeyStats("k"); ks.Subscribed {
		t.Fatalf("still subscribed")
	}
}

// quota takes n values and then pauses.
type quota struct {
	recorder[string, string]
	n int
}

func (q *quota) Paused() bool { return q.count() >= q.n }

func TestPausedConsumerLeavesValuesQueued(t *testing.T) {
	e := newTestEngine[string, string](t, Options{})
	for _, v := range []string{"a", "b", "c"} {
		e.TryPush("k", v)
	}
	q := &quota{n: 1}
	release, ok := e.Bind("k", q)
	if !ok {
		t.Fatalf("bind failed")
	}
	waitFor(t, func() bool { return q.count() == 1 })
	time.Sleep(20 * time.Millisecond)
	if ks, _ := e.KeyStats("k"); ks.Queued != 2 {
		t.Fatalf("queued = %d, want 2", ks.Queued)
	}
	e.TryPush("k", "d")
	time.Sleep(20 * time.Millisecond)
	if diff := cmp.Diff([]string{"a"}, q.got()); diff != "" {
		t.Fatalf("paused consumer (-want +got):\n%s", diff)
	}

	release()
	next := &recorder[string, string]{}
	e.TrySubscribe("k", next)
	e.Close()
	if diff := cmp.Diff([]string{"b", "c", "d"}, next.got()); diff != "" {
		t.Fatalf("next consumer (-want +got):\n%s", diff)
	}
}

func TestDetachReturnsBoundConsumer(t *testing.T) {
	e := newTestEngine[string, string](t, Options{})
	if _, ok := e.Detach("k"); ok {
		t.Fatalf("detach of unknown key reported a consumer")
	}
	c := &recorder[string, string]{}
	release, _ := e.Bind("k", c)
	got, ok := e.Detach("k")
	if !ok || got != Consumer[string, string](c) {
		t.Fatalf("detach = %v, %v", got, ok)
	}
	if _, ok := e.Detach("k"); ok {
		t.Fatalf("second detach reported a consumer")
	}
	if release() {
		t.Fatalf("release after detach unbound something")
	}
}
