// Package id provides the 128-bit sortable identifiers stamped on published
// messages.
//
// Byte-wise comparison of two IDs preserves generation order within a
// process: the first 8 bytes are a millisecond timestamp and the last 8 a
// per-millisecond sequence. The Generator never goes backwards, even when the
// wall clock does.
package id
