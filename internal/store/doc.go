// Package store provides the SQLite session journal.
//
// Every simulation session gets one row in sessions. Status transitions and
// fault-flag changes are appended as the engine emits them:
//   - status_events: running/stopped transitions with a msgpack snapshot
//     of the I/O table at the moment of the transition
//   - fault_events: the engine's fault history, one row per flag change
//
// # Ordering
//
// Rows are ordered by seq, the engine's logical clock, never by wall time.
// Queries end in ORDER BY seq ASC so reads are deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
