// Package repositories implements SQLite persistence for the scrobble client.
//
// Key Implementations:
//   - [EventRepository] : the durable store behind the pending queue
//   - [HistoryRepository] : the append-only log of batch submission outcomes
//
// Sequence numbers give queue entries a stable insertion order independent of their UUIDs.
// [NextSequence] atomically increments per-table counters kept in dedicated sequence tables.
package repositories
