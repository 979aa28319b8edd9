// Package internal holds helpers private to goGuard: random identifiers,
// key derivation and keyed fingerprint hashing.
//
// # Sub-packages
//
//   - audit: async security event dispatch and sinks
//   - flows: orchestrators for token issue, rotation, validation and invalidation
//   - metrics: lock-free counters and latency histograms
//   - rate: token-bucket limiters (Redis Lua and in-memory)
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API.
//   - Perform store I/O.
package internal
