// Package engine is the delivery adapter around the registry.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The registry is not safe for concurrent use, so the engine owns it and
// processes every message and query in one goroutine. This ensures:
// - Messages are strictly serialized (the Ordering Guard needs no locks)
// - Queries observe only fully applied state
// - The message log replays to identical state
//
// Event Processing Flow:
// 1. Producers call Submit (messages) or Query (reads); both enqueue
// 2. Engine.Run() dequeues events one at a time
// 3. Messages: assign seq and id, answer duplicates from the log
// 4. Stamp the ordering reference and timestamp if the transport did not
// 5. Route through the registry, assign notice ids
// 6. Commit message, outcome, notices and state changes in one transaction
// 7. Publish notices to the Sink, record metrics, reply
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// All messages stamped with monotonic seq from Clock.Next().
// NEVER use wall-clock timestamps for ordering.
//
// Idempotent Delivery:
// Messages without an id but with a transport reference get a
// content-addressed id (wire.MessageID), so a redelivered message is
// recognized and answered from the log without re-routing.
package engine
