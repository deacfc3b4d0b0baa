// Package index keeps an in-memory map from correlation id to the records
// logged for it.
//
// The index is a cache over the log store and never the source of truth.
// Rebuild replays the store; Refresh tails bytes appended since the last
// pass; ObserveAt adds a record the caller has just appended so the next
// Refresh skips that line. Within one correlation id records are ordered by
// timestamp, ties in arrival order.
//
// A checkpoint (zstd compressed JSON) lets a new process skip the full
// replay. It records the consumed byte offset and a hash of the head of the
// log; if the log was rotated or rewritten the checkpoint is ignored.
package index
