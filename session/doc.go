// Package session provides Redis-backed session persistence.
//
// # Storage
//
// Each session is a Redis hash so heartbeat, family linking and deactivation
// can update single fields inside Lua scripts without a read-modify-write
// round trip. A per-user sorted set, scored by creation time, indexes the
// sessions of a user oldest first. A per-user counter hands out monotonically
// increasing session versions.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does not revoke
// refresh families or apply policy; callers act on the family id returned by
// [Store.Deactivate].
package session
