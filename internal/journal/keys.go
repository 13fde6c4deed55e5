package journal

import (
	"encoding/binary"
)

var (
	rootPrefix = []byte("j/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func keyBase(key string, extra int) []byte {
	k := make([]byte, 0, len(rootPrefix)+4+len(key)+extra)
	k = append(k, rootPrefix...)
	k = appendBE4(k, uint32(len(key)))
	return append(k, key...)
}

// KeyMeta is the last-sequence key for a journal key.
func KeyMeta(key string) []byte {
	return append(keyBase(key, len(metaSuffix)), metaSuffix...)
}

// KeyEntry is the storage key of entry seq.
func KeyEntry(key string, seq uint64) []byte {
	k := keyBase(key, len(entrySeg)+8)
	k = append(k, entrySeg...)
	return appendBE8(k, seq)
}

// entryBounds returns [lower, upper) covering every entry of key.
func entryBounds(key string) ([]byte, []byte) {
	lo := KeyEntry(key, 0)
	hi := append(KeyEntry(key, ^uint64(0)), 0x00)
	return lo, hi
}

func seqFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(k)-8:])
}
