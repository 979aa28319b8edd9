// Package flows contains dependency-injected orchestrators for Engine operations.
//
// Each flow function (RunIssue, RunRotate, RunValidateRefresh,
// RunInvalidateSession, ...) accepts a typed dependency struct and returns a
// result with a failure kind the Engine maps to sentinel errors, metrics and
// security events. Stores are reached only through small interfaces so flows
// can be tested against in-memory fakes.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
package flows
