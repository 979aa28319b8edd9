// Package goGuard issues and rotates access/refresh token pairs and manages
// the sessions, devices and CSRF tokens around them.
//
// Every refresh token belongs to a family bound to exactly one session.
// Rotation consumes the presented token through a single compare-and-swap
// in Redis; presenting a consumed token revokes the whole family. Ending a
// session always revokes its family.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface: [Engine], [Builder], [Config] and value
// types. Flow orchestration, rate limiting, metrics and event dispatch live
// under internal/. Stores live in the refresh, session and device packages;
// token signing in jwt; CSRF primitives in csrf.
//
// # What this package must NOT do
//
//   - Check passwords or talk to identity providers; it consumes a verified [Identity].
//   - Admit a request when a store call fails. Store failures surface as [ErrStoreUnavailable].
//   - Return [ErrRotationConflict] to callers; reuse is reported as [ErrFamilyRevoked].
//
// # Performance contract
//
// VerifyAccess is the hot path and performs no I/O. Rotate costs three Redis
// round trips; session and device operations one or two.
package goGuard
