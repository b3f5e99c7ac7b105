// Package store provides the SQLite-backed local cache of one device.
//
// The cache holds:
//   - Sessions: the device's current view of each GameSession, one record per id
//   - Events: the accepted events folded into each session, keyed by seq
//   - Statistics: one aggregate record per player
//   - Identity: the anonymous device identity, if one was issued
//
// # Record integrity
//
// Every record is stored as JSON together with a domain-separated digest of
// that JSON. Loads recompute the digest; a mismatch or an undecodable record
// is reported as *CorruptionError so the caller can rebuild that one session
// from the remote log. Other sessions are unaffected.
//
// # Atomicity
//
// Each write runs in a single transaction. Commit stores a session record and
// the events that produced it together, so a crash leaves either the previous
// or the new record, never a mix.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
