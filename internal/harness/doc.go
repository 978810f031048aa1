// Package harness runs registry conformance scenarios.
//
// A scenario is a YAML file listing inbound messages, the notices each one
// is expected to produce, and assertions over the final ACL, entity records
// and version catalog. Every scenario runs against a fresh in-memory store
// through the real engine, so the notices checked are the ones the registry
// actually emits.
//
// # Scenario Format
//
//	name: register_and_report
//	description: "An entity registers and reports its owner"
//	registry:
//	  owner: OWNER
//	steps:
//	  - message:
//	      action: Register
//	      from: SPAWNER
//	      tags: { Process-Id: E1 }
//	    expect:
//	      notices: [State, Register-Notice]
//	  - message:
//	      action: State-Notice
//	      from: E1
//	      data: { Owner: O1, Controllers: [C1] }
//	    expect:
//	      patch: true
//	assertions:
//	  - type: acl
//	    address: O1
//	    owned: [E1]
//
// Structured data is encoded as JSON before delivery; a string is delivered
// as is, so malformed payloads can be expressed too.
//
// # Assertion Types
//
//   - acl: the affiliations of an address equal owned/controlled
//   - entity_present: an entity is registered, optionally with owner/controllers
//   - entity_absent: an entity is not registered
//   - version_present: a version is cataloged, optionally with module_id
//   - version_absent: a version is not cataloged
//   - notice_count: the trace holds exactly count notices with an action
//
// # Deterministic Testing
//
// Message ids, notice ids and delivery timestamps come from deterministic
// generators, and messages without a reference are stamped with their seq,
// so a scenario always produces the same trace. After the last step the
// message log is replayed and the ACL index is cross-checked; either
// failing fails the scenario.
package harness
