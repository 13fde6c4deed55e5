package journal

import (
	"context"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/rzbill/dispatch/pkg/log"
)

// TrimToMaxEntries keeps only the newest keep entries of key. It returns the
// number of entries removed.
func (j *Journal) TrimToMaxEntries(ctx context.Context, key string, keep int) (int, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	if keep < 0 {
		keep = 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	last := j.keyLogLocked(key).lastSeq
	if last <= uint64(keep) {
		return 0, nil
	}
	before := last - uint64(keep) + 1
	n, err := j.countBelow(key, before)
	if err != nil || n == 0 {
		return 0, err
	}
	if err := j.trimBelow(ctx, key, before); err != nil {
		return 0, err
	}
	lo, _ := entryBounds(key)
	if err := j.db.CompactRange(lo, KeyEntry(key, before)); err != nil {
		j.logger.Warn("journal.compact_failed", logpkg.Str("key", key), logpkg.Err(err))
	}
	return n, nil
}

func (j *Journal) countBelow(key string, before uint64) (int, error) {
	lo, _ := entryBounds(key)
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: KeyEntry(key, before)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n, iter.Error()
}

// trimBelow deletes entries with sequence < before. Callers hold j.mu.
func (j *Journal) trimBelow(ctx context.Context, key string, before uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lo, _ := entryBounds(key)
	return j.db.DeleteRange(lo, KeyEntry(key, before))
}
