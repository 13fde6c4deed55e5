package dispatchsvc

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/rzbill/dispatch/internal/dispatcher"
	"github.com/rzbill/dispatch/internal/filter"
	"github.com/rzbill/dispatch/internal/journal"
	"github.com/rzbill/dispatch/internal/runtime"
	"github.com/rzbill/dispatch/pkg/id"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

// Service publishes to and subscribes from the dispatch engine.
type Service struct {
	rt        *runtime.Runtime
	logger    logpkg.Logger
	engine    *dispatcher.Engine[string, Message]
	ids       *id.Generator
	subBufLen int
	journaled map[string]struct{}
	limiter   *rate.Limiter
	closed    atomic.Bool
}

// New returns a Service using a default logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, nil)
}

// NewWithLogger returns a Service using the provided logger and binds the
// configured journal keys.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("dispatch"))
	}
	cfg := rt.Config()
	s := &Service{
		rt:        rt,
		logger:    logger,
		ids:       id.NewGenerator(),
		subBufLen: cfg.SubscriberBuffer,
		journaled: make(map[string]struct{}, len(cfg.Journal.Keys)),
	}
	if s.subBufLen <= 0 {
		s.subBufLen = 1024
	}
	if r := cfg.Engine.PublishRate; r > 0 {
		burst := cfg.Engine.PublishBurst
		if burst <= 0 {
			burst = int(math.Ceil(r))
		}
		s.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
	s.engine = dispatcher.New[string, Message](dispatcher.Options{
		MaxQueueCapacity: cfg.Engine.MaxQueueCapacity,
		Logger:           logger.With(logpkg.Component("dispatcher")),
		Metrics:          rt.Metrics(),
		EvictIdle:        cfg.Engine.EvictIdle,
		EvictInterval:    cfg.EvictInterval(),
	})
	for _, key := range cfg.Journal.Keys {
		jc := &journalConsumer{j: rt.Journal(), logger: logger}
		if s.engine.TrySubscribe(key, jc) {
			s.journaled[key] = struct{}{}
		}
	}
	return s
}

// Close stops the engine after delivering what was already accepted. Close
// the runtime afterwards.
func (s *Service) Close() {
	s.closed.Store(true)
	s.engine.Close()
}

// Engine exposes the underlying engine.
func (s *Service) Engine() *dispatcher.Engine[string, Message] { return s.engine }

// Publish enqueues payload for key.
func (s *Service) Publish(ctx context.Context, key string, payload []byte, headers map[string]string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if key == "" {
		return Message{}, ErrEmptyKey
	}
	if s.closed.Load() {
		return Message{}, ErrClosed
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return Message{}, ErrRateLimited
	}
	msgID := s.ids.Next()
	m := Message{ID: msgID, Key: key, Payload: payload, Headers: headers, PublishedMs: msgID.Ms()}
	if !s.engine.TryPush(key, m) {
		if s.closed.Load() {
			return Message{}, ErrClosed
		}
		return Message{}, ErrQueueFull
	}
	return m, nil
}

// Subscribe binds a buffered consumer to key and streams matching messages
// to sink until ctx ends, the limit is reached, the sink fails, the key is
// unsubscribed, or the service closes. Once the limit worth of messages has
// been taken the consumer pauses, so later messages stay queued for the next
// subscriber. Messages delivered by the final sweep on close, or before an
// Unsubscribe, are flushed to the sink before Subscribe returns.
func (s *Service) Subscribe(ctx context.Context, key string, opts SubscribeOptions, sink SubscribeSink) error {
	if key == "" {
		return ErrEmptyKey
	}
	f, err := filter.Compile(opts.Filter)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if s.closed.Load() {
		return ErrClosed
	}

	label := opts.Transport
	if label == "" {
		label = "local"
	}
	c := newChanConsumer(s.subBufLen, f, opts.Limit, s.rt.Metrics(), label)
	release, ok := s.engine.Bind(key, c)
	if !ok {
		if s.closed.Load() {
			return ErrClosed
		}
		return ErrAlreadySubscribed
	}

	logger := s.logger.With(logpkg.Str("key", key), logpkg.Str("transport", label))
	if rid := requestID(ctx); rid != "" {
		logger = logger.With(logpkg.Str("request_id", rid))
	}
	logger.Debug("dispatch.subscribe.start", logpkg.Str("filter", f.String()), logpkg.Int("buf", s.subBufLen))

	w := &subWriter{sink: sink, limit: opts.Limit}
	err = w.run(ctx, c.ch, s.engine.Done(), c.detached)
	release()

	if n := c.discardBuffered(); n > 0 {
		logger.Warn("dispatch.subscribe.discarded", logpkg.Int("discarded", n), logpkg.Err(err))
	}
	if n := c.dropped.Swap(0); n > 0 {
		logger.Warn("dispatch.subscribe.dropped", logpkg.Uint64("dropped", n))
	}
	logger.Debug("dispatch.subscribe.end", logpkg.Int("sent", w.sent), logpkg.Err(err))
	return err
}

// Unsubscribe detaches whatever consumer is bound to key. A Subscribe call
// streaming that key sends what it had already taken and returns nil.
func (s *Service) Unsubscribe(key string) {
	c, ok := s.engine.Detach(key)
	if !ok {
		return
	}
	if cc, ok := c.(*chanConsumer); ok {
		cc.detach()
	}
}

func (s *Service) Stats() dispatcher.Stats { return s.engine.Stats() }

func (s *Service) KeyStats(key string) (dispatcher.KeyStats, bool) { return s.engine.KeyStats(key) }

// Journaled reports whether key is recorded to the journal.
func (s *Service) Journaled(key string) bool {
	_, ok := s.journaled[key]
	return ok
}

// Journal reads entries recorded for key after afterSeq.
func (s *Service) Journal(key string, afterSeq uint64, limit int) ([]journal.Entry, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return s.rt.Journal().Read(key, afterSeq, limit)
}

// WaitJournal blocks until key has an entry past afterSeq or wait elapses,
// then reads like Journal.
func (s *Service) WaitJournal(key string, afterSeq uint64, limit int, wait time.Duration) ([]journal.Entry, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	j := s.rt.Journal()
	deadline := time.Now().Add(wait)
	for j.LastSeq(key) <= afterSeq {
		left := time.Until(deadline)
		if left <= 0 || !j.WaitForAppend(key, left) {
			break
		}
	}
	return j.Read(key, afterSeq, limit)
}

// TrimJournal keeps the newest keep entries of key and returns how many
// were removed.
func (s *Service) TrimJournal(ctx context.Context, key string, keep int) (int, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	n, err := s.rt.Journal().TrimToMaxEntries(ctx, key, keep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("dispatch.journal.trimmed", logpkg.Str("key", key), logpkg.Int("removed", n), logpkg.Int("keep", keep))
	}
	return n, nil
}

// chanConsumer hands matching messages to a subscription without ever
// blocking the dispatcher. With a limit it pauses after taking that many.
type chanConsumer struct {
	ch       chan Message
	filter   filter.Filter
	limit    int64
	taken    atomic.Int64
	dropped  atomic.Uint64
	detached chan struct{}
	once     sync.Once
	metrics  interface{ ObserveDropped(string, int) }
	label    string
}

func newChanConsumer(buf int, f filter.Filter, limit int, metrics interface{ ObserveDropped(string, int) }, label string) *chanConsumer {
	return &chanConsumer{
		ch:       make(chan Message, buf),
		filter:   f,
		limit:    int64(limit),
		detached: make(chan struct{}),
		metrics:  metrics,
		label:    label,
	}
}

func (c *chanConsumer) Consume(_ string, m Message) {
	if !c.filter.Match(filter.Input{Key: m.Key, ID: m.ID.String(), Payload: m.Payload, Headers: m.Headers, PublishedMs: m.PublishedMs}) {
		return
	}
	select {
	case c.ch <- m:
		c.taken.Add(1)
	default:
		c.drop(1)
	}
}

// Paused stops the engine popping for this key once the limit is taken.
func (c *chanConsumer) Paused() bool {
	return c.limit > 0 && c.taken.Load() >= c.limit
}

func (c *chanConsumer) drop(n int) {
	c.dropped.Add(uint64(n))
	if c.metrics != nil {
		c.metrics.ObserveDropped(c.label, n)
	}
}

func (c *chanConsumer) detach() { c.once.Do(func() { close(c.detached) }) }

// discardBuffered empties what the subscription took but never sent, counts
// it as dropped and returns how many there were. Call it after unbinding.
func (c *chanConsumer) discardBuffered() int {
	n := 0
	for {
		select {
		case <-c.ch:
			n++
		default:
			if n > 0 {
				c.drop(n)
			}
			return n
		}
	}
}

// subWriter drains a subscription buffer into a sink.
type subWriter struct {
	sink  SubscribeSink
	limit int
	sent  int
}

// run returns nil when the limit is reached, the engine stops, or the
// consumer is detached; ctx.Err() when the caller goes away; or the sink's
// error.
func (w *subWriter) run(ctx context.Context, ch <-chan Message, engineDone, detached <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-ch:
			done, err := w.handle(m, len(ch) == 0)
			if err != nil || done {
				return err
			}
		case <-engineDone:
			return w.flushRest(ch)
		case <-detached:
			return w.flushRest(ch)
		}
	}
}

func (w *subWriter) flushRest(ch <-chan Message) error {
	for {
		select {
		case m := <-ch:
			done, err := w.handle(m, len(ch) == 0)
			if err != nil || done {
				return err
			}
		default:
			return nil
		}
	}
}

func (w *subWriter) handle(m Message, flush bool) (bool, error) {
	if err := w.sink.Send(m); err != nil {
		return true, err
	}
	w.sent++
	limitHit := w.limit > 0 && w.sent >= w.limit
	if flush || limitHit {
		if err := w.sink.Flush(); err != nil {
			return true, err
		}
	}
	return limitHit, nil
}

// journalConsumer records every delivery for a journaled key.
type journalConsumer struct {
	j      *journal.Journal
	logger logpkg.Logger
}

func (c *journalConsumer) Consume(key string, m Message) {
	_, err := c.j.Append(context.Background(), journal.Entry{
		ID:          m.ID.String(),
		Key:         key,
		Payload:     m.Payload,
		Headers:     m.Headers,
		PublishedMs: m.PublishedMs,
		DeliveredMs: time.Now().UnixMilli(),
	})
	if err != nil {
		c.logger.Error("dispatch.journal.append", logpkg.Str("key", key), logpkg.Err(err))
	}
}
