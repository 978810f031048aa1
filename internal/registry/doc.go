// Package registry implements the entity registry state machine.
//
// The registry tracks ownership records for independently operated entities,
// derives an access-control list (ACL) from them, and keeps a separate
// owner-gated catalog of module versions.
//
// ARCHITECTURE:
//
// A Registry is an explicit in-memory value owned by exactly one goroutine
// (the engine's Run loop). It is NOT safe for concurrent use. Every decision
// is a pure function of the current state and the inbound message:
//
//  1. Router.Route dispatches on the message's action label
//  2. Payloads are parsed into typed values before any business logic
//  3. The Ordering Guard admits or rejects self-reports by delivery token
//  4. The Authorization Engine gates unregistration and owner-only actions
//  5. The Registry Store mutates records; the ACL projector patches the index
//  6. The router shapes outbound notices and an Outcome for persistence
//
// A message either completes fully (mutation plus notices) or produces only
// a failure notice with zero mutation.
//
// CRITICAL PATTERNS:
//
// Ordering: LastSequence never decreases. A token equal to the last accepted
// one is rejected so that redelivery cannot re-trigger side effects.
//
// ACL consistency: the index is patched on every mutation and must always
// equal a full recomputation over the records (see VerifyACL).
//
// Silent version failures: Add-Version and Remove-Version never reveal why
// they did nothing, so privileged addresses are not disclosed.
package registry
