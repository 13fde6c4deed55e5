package journal

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	pebblestore "github.com/rzbill/dispatch/internal/storage/pebble"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

func openTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestJournal(t *testing.T, max int) (*Journal, *pebblestore.DB) {
	t.Helper()
	db := openTestDB(t)
	return Open(db, Options{MaxEntries: max, Logger: logpkg.NewNopLogger()}), db
}

func appendN(t *testing.T, j *Journal, key string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := j.Append(context.Background(), Entry{Key: key, ID: key, Payload: []byte{byte(i)}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func seqs(es []Entry) []uint64 {
	out := make([]uint64, len(es))
	for i, e := range es {
		out[i] = e.Seq
	}
	return out
}

func TestAppendAndRead(t *testing.T) {
	j, _ := newTestJournal(t, 0)
	ctx := context.Background()

	seq, err := j.Append(ctx, Entry{Key: "orders", ID: "a", Payload: []byte("hello"), Headers: map[string]string{"k": "v"}, PublishedMs: 10, DeliveredMs: 12})
	if err != nil || seq != 1 {
		t.Fatalf("append = %d, %v", seq, err)
	}
	appendN(t, j, "orders", 3)
	appendN(t, j, "other", 2)

	got, err := j.Read("orders", 0, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff([]uint64{1, 2, 3, 4}, seqs(got)); diff != "" {
		t.Fatalf("seqs (-want +got):\n%s", diff)
	}
	want := Entry{Seq: 1, ID: "a", Key: "orders", Payload: []byte("hello"), Headers: map[string]string{"k": "v"}, PublishedMs: 10, DeliveredMs: 12}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Fatalf("entry (-want +got):\n%s", diff)
	}

	page, err := j.Read("orders", 2, 1)
	if err != nil || len(page) != 1 || page[0].Seq != 3 {
		t.Fatalf("page = %v, %v", seqs(page), err)
	}
	if j.LastSeq("other") != 2 {
		t.Fatalf("other last seq = %d", j.LastSeq("other"))
	}
}

// Keys that are prefixes of each other must not bleed into one another.
func TestKeyIsolation(t *testing.T) {
	j, _ := newTestJournal(t, 0)
	appendN(t, j, "a", 2)
	appendN(t, j, "a/e/", 3)
	got, _ := j.Read("a", 0, 0)
	if len(got) != 2 {
		t.Fatalf("a has %d entries", len(got))
	}
}

func TestSequenceSurvivesReopen(t *testing.T) {
	db := openTestDB(t)
	j := Open(db, Options{Logger: logpkg.NewNopLogger()})
	appendN(t, j, "k", 3)

	j2 := Open(db, Options{Logger: logpkg.NewNopLogger()})
	seq, err := j2.Append(context.Background(), Entry{Key: "k"})
	if err != nil || seq != 4 {
		t.Fatalf("append after reopen = %d, %v", seq, err)
	}
}

func TestMaxEntriesRetention(t *testing.T) {
	j, _ := newTestJournal(t, 3)
	appendN(t, j, "k", 10)
	got, _ := j.Read("k", 0, 0)
	if diff := cmp.Diff([]uint64{8, 9, 10}, seqs(got)); diff != "" {
		t.Fatalf("retained (-want +got):\n%s", diff)
	}
}

func TestTrimToMaxEntries(t *testing.T) {
	j, _ := newTestJournal(t, 0)
	appendN(t, j, "k", 5)
	n, err := j.TrimToMaxEntries(context.Background(), "k", 2)
	if err != nil || n != 3 {
		t.Fatalf("trim = %d, %v", n, err)
	}
	got, _ := j.Read("k", 0, 0)
	if diff := cmp.Diff([]uint64{4, 5}, seqs(got)); diff != "" {
		t.Fatalf("after trim (-want +got):\n%s", diff)
	}
	if n, _ := j.TrimToMaxEntries(context.Background(), "k", 2); n != 0 {
		t.Fatalf("second trim removed %d", n)
	}
}

func TestCorruptEntrySkipped(t *testing.T) {
	j, db := newTestJournal(t, 0)
	appendN(t, j, "k", 2)
	if err := db.Set(KeyEntry("k", 1), []byte("garbage!")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := j.Read("k", 0, 0)
	if err != nil || len(got) != 1 || got[0].Seq != 2 {
		t.Fatalf("read = %v, %v", seqs(got), err)
	}
}

func TestWaitForAppend(t *testing.T) {
	j, _ := newTestJournal(t, 0)
	if j.WaitForAppend("k", 10*time.Millisecond) {
		t.Fatalf("woke without append")
	}
	done := make(chan bool, 1)
	go func() { done <- j.WaitForAppend("k", time.Second) }()
	time.Sleep(10 * time.Millisecond)
	appendN(t, j, "k", 1)
	if !<-done {
		t.Fatalf("waiter timed out")
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	j, _ := newTestJournal(t, 0)
	if _, err := j.Append(context.Background(), Entry{}); err != ErrEmptyKey {
		t.Fatalf("err = %v", err)
	}
	if _, err := j.Read("", 0, 0); err != ErrEmptyKey {
		t.Fatalf("err = %v", err)
	}
}

func TestRecordRoundTripAndCorruption(t *testing.T) {
	b := encodeRecord([]byte("hdr"), []byte("payload"))
	h, p, err := decodeRecord(b)
	if err != nil || !bytes.Equal(h, []byte("hdr")) || !bytes.Equal(p, []byte("payload")) {
		t.Fatalf("decode = %q %q %v", h, p, err)
	}
	b[len(b)-5] ^= 0xff
	if _, _, err := decodeRecord(b); err != errCorrupt {
		t.Fatalf("expected corruption, got %v", err)
	}
	if _, _, err := decodeRecord([]byte{200, 1, 0, 0, 0, 0}); err != errCorrupt {
		t.Fatalf("expected corruption for bad length, got %v", err)
	}
}

func TestKeyOrdering(t *testing.T) {
	if bytes.Compare(KeyEntry("k", 255), KeyEntry("k", 256)) >= 0 {
		t.Fatalf("entry keys not ordered by sequence")
	}
	lo, hi := entryBounds("k")
	if bytes.Compare(lo, KeyEntry("k", 1)) > 0 || bytes.Compare(KeyEntry("k", ^uint64(0)), hi) >= 0 {
		t.Fatalf("bounds do not cover entries")
	}
	if seqFromKey(KeyEntry("k", 42)) != 42 {
		t.Fatalf("seqFromKey mismatch")
	}
}
