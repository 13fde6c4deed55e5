package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/dispatch/internal/storage/pebble"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

// ErrEmptyKey is returned for operations on the empty key.
var ErrEmptyKey = errors.New("journal: empty key")

// Entry is one journaled delivery.
type Entry struct {
	Seq         uint64            `json:"seq"`
	ID          string            `json:"id"`
	Key         string            `json:"key"`
	Payload     []byte            `json:"payload"`
	Headers     map[string]string `json:"headers,omitempty"`
	PublishedMs int64             `json:"published_ms"`
	DeliveredMs int64             `json:"delivered_ms"`
}

// header is the JSON-encoded record header; Key and Seq are implied by the
// storage key.
type header struct {
	ID          string            `json:"id"`
	Headers     map[string]string `json:"h,omitempty"`
	PublishedMs int64             `json:"p"`
	DeliveredMs int64             `json:"d"`
}

// Options configures a Journal.
type Options struct {
	// MaxEntries caps entries kept per key; 0 keeps everything.
	MaxEntries int
	Logger     logpkg.Logger
}

type keyLog struct {
	lastSeq  uint64
	notifyCh chan struct{}
}

// Journal appends and reads per-key entries.
type Journal struct {
	db     *pebblestore.DB
	opts   Options
	logger logpkg.Logger

	mu   sync.Mutex
	logs map[string]*keyLog
}

func Open(db *pebblestore.DB, opts Options) *Journal {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger().With(logpkg.Component("journal"))
	}
	return &Journal{db: db, opts: opts, logger: opts.Logger, logs: make(map[string]*keyLog)}
}

// keyLogLocked loads the per-key state, reading the last sequence from
// storage on first use.
func (j *Journal) keyLogLocked(key string) *keyLog {
	if l, ok := j.logs[key]; ok {
		return l
	}
	l := &keyLog{notifyCh: make(chan struct{})}
	if meta, err := j.db.Get(KeyMeta(key)); err == nil && len(meta) >= 8 {
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	j.logs[key] = l
	return l
}

// Append stores e under e.Key and returns the assigned sequence.
func (j *Journal) Append(ctx context.Context, e Entry) (uint64, error) {
	if e.Key == "" {
		return 0, ErrEmptyKey
	}
	hdr, err := json.Marshal(header{ID: e.ID, Headers: e.Headers, PublishedMs: e.PublishedMs, DeliveredMs: e.DeliveredMs})
	if err != nil {
		return 0, fmt.Errorf("journal: encode header: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	l := j.keyLogLocked(e.Key)
	seq := l.lastSeq + 1

	b := j.db.NewBatch()
	defer b.Close()
	if err := b.Set(KeyEntry(e.Key, seq), encodeRecord(hdr, e.Payload), nil); err != nil {
		return 0, err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	if err := b.Set(KeyMeta(e.Key), meta[:], nil); err != nil {
		return 0, err
	}
	if err := j.db.CommitBatch(ctx, b); err != nil {
		return 0, fmt.Errorf("journal: append %s: %w", e.Key, err)
	}
	l.lastSeq = seq
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})

	if keep := j.opts.MaxEntries; keep > 0 && seq > uint64(keep) {
		if err := j.trimBelow(ctx, e.Key, seq-uint64(keep)+1); err != nil {
			j.logger.Warn("journal.trim_failed", logpkg.Str("key", e.Key), logpkg.Err(err))
		}
	}
	return seq, nil
}

// LastSeq returns the last assigned sequence for key, 0 if none.
func (j *Journal) LastSeq(key string) uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.keyLogLocked(key).lastSeq
}

// WaitForAppend blocks until an entry is appended to key or timeout elapses.
// It returns true if woken by an append.
func (j *Journal) WaitForAppend(key string, timeout time.Duration) bool {
	j.mu.Lock()
	ch := j.keyLogLocked(key).notifyCh
	j.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

// Read returns up to limit entries of key with sequence > afterSeq, in order.
// limit <= 0 means no limit.
func (j *Journal) Read(key string, afterSeq uint64, limit int) ([]Entry, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	lo, hi := entryBounds(key)
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Entry
	for ok := iter.SeekGE(KeyEntry(key, afterSeq+1)); ok; ok = iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		e, err := decodeEntry(key, iter.Key(), iter.Value())
		if err != nil {
			j.logger.Warn("journal.skip_corrupt", logpkg.Str("key", key), logpkg.Uint64("seq", seqFromKey(iter.Key())))
			continue
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

func decodeEntry(key string, k, v []byte) (Entry, error) {
	hb, payload, err := decodeRecord(v)
	if err != nil {
		return Entry{}, err
	}
	var h header
	if err := json.Unmarshal(hb, &h); err != nil {
		return Entry{}, fmt.Errorf("journal: decode header: %w", err)
	}
	return Entry{
		Seq:         seqFromKey(k),
		ID:          h.ID,
		Key:         key,
		Payload:     payload,
		Headers:     h.Headers,
		PublishedMs: h.PublishedMs,
		DeliveredMs: h.DeliveredMs,
	}, nil
}
