// Package store provides SQLite-backed durable storage for the registry.
//
// The store holds:
//   - Entities and Controllers: the authoritative ownership records
//   - Versions: the version catalog
//   - Messages: an append-only log of every routed message with its
//     outcome and the notices it produced
//
// # Critical Patterns
//
// Atomic commit
//   - A message, its log entry and the state changes it caused are written
//     in one transaction by Commit
//   - The ACL index is never stored; it is rebuilt from entities on load
//
// Message-level idempotency
//   - messages.id is the primary key and inserts use ON CONFLICT(id) DO NOTHING
//   - A redelivered message commits nothing and reports inserted=false
//
// Logical time
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - All log queries use ORDER BY seq ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity (controllers cascade)
//
// Message bodies and notices are stored as canonical JSON produced by
// internal/wire, so replays compare byte-for-byte.
package store
