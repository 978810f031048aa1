// Package snapshot exports and imports registry state as a compact,
// deterministic file.
//
// Layout:
//
//	magic "ACLRSNAP" | format version (1 byte) | zstd(CBOR document)
//
// The CBOR document uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same state always produces identical bytes. The document carries the
// state hash, which Decode verifies.
package snapshot
