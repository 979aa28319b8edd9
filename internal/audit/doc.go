// Package audit implements async dispatching of security events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zerolog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured security record with ULID id, severity, user, session,
//     family, client and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does not decide
// which events to emit; the Engine and flow functions do.
package audit
