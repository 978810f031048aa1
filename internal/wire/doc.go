// Package wire defines the message shapes exchanged between the delivery
// layer and the registry core.
//
// This package contains types and pure helpers only. The registry, engine,
// store and harness packages import wire; wire imports nothing internal.
//
// Key design constraints:
//   - Tag values are `any` so the parse step can reject non-string values
//   - Ordering tokens (Reference) come from the delivery context, never from Data
//   - Canonical JSON (RFC 8785) is the only encoding used for hashing and golden traces
package wire
