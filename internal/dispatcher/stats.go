package dispatcher

// Stats is a point-in-time view of an Engine. Counters are cumulative; Keys,
// Subscribed and Queued are gauges read without stopping producers.
type Stats struct {
	Keys       int    `json:"keys"`
	Subscribed int    `json:"subscribed"`
	Queued     int    `json:"queued"`
	Pushed     uint64 `json:"pushed"`
	Rejected   uint64 `json:"rejected"`
	Delivered  uint64 `json:"delivered"`
	Panics     uint64 `json:"panics"`
	Sweeps     uint64 `json:"sweeps"`
	Evicted    uint64 `json:"evicted"`
}

// KeyStats describes a single key.
type KeyStats struct {
	Queued     int  `json:"queued"`
	Subscribed bool `json:"subscribed"`
}

func (e *Engine[K, V]) Stats() Stats {
	st := Stats{
		Pushed:    e.pushed.Load(),
		Rejected:  e.rejected.Load(),
		Delivered: e.delivered.Load(),
		Panics:    e.panics.Load(),
		Sweeps:    e.sweeps.Load(),
		Evicted:   e.evicted.Load(),
	}
	e.mu.RLock()
	st.Keys = len(e.streams)
	for _, s := range e.streams {
		if s.consumer.Load() != nil {
			st.Subscribed++
		}
		st.Queued += s.q.Len()
	}
	e.mu.RUnlock()
	return st
}

// KeyStats reports the state of key, or false if no stream exists for it.
func (e *Engine[K, V]) KeyStats(key K) (KeyStats, bool) {
	var ks KeyStats
	ok := e.withStream(key, false, func(s *stream[K, V]) {
		ks = KeyStats{Queued: s.q.Len(), Subscribed: s.consumer.Load() != nil}
	})
	return ks, ok
}

// Keys returns the keys currently known to the engine, in no particular order.
func (e *Engine[K, V]) Keys() []K {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]K, 0, len(e.streams))
	for k := range e.streams {
		out = append(out, k)
	}
	return out
}
