// Package journal is a Pebble-backed, per-key, append-only record of
// delivered messages.
//
// Each key gets its own monotonically increasing sequence. Entries are stored
// under big-endian sequence keys so that a bounded iterator returns them in
// order:
//
//	j/{len_be4}{key}/m              last assigned sequence
//	j/{len_be4}{key}/e/{seq_be8}    crc-framed entry
//
// Length-prefixing the key keeps one key's range from overlapping another's
// regardless of the bytes a key contains.
package journal
