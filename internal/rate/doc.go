// Package rate implements token-bucket admission control for auth endpoints.
//
// # Bucket semantics
//
// A bucket holds at most Rule.MaxTokens tokens and regains
// elapsed/Rule.Window*Rule.RefillRate tokens over time. Each admitted request
// takes one token. Buckets are keyed by (rule name, caller key), for example
// ("login", client IP).
//
// [RedisBucket] runs refill-and-take inside one Lua script so admission is
// atomic across processes. [MemoryBucket] keeps buckets in sharded,
// mutex-guarded maps for single-process deployments and tests.
//
// # What this package must NOT do
//
//   - Decide which routes are limited (callers pass the [Rule]).
//   - Admit a request when the backing store fails.
package rate
