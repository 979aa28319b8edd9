// Package middleware adapts goGuard.Engine to net/http: access-token guards,
// CSRF validation, rate limiting, security headers and request logging.
//
// # Guards
//
//   - [Guard] authenticates with an explicit route mode; [goGuard.ModeInherit] uses the engine default.
//   - [RequireJWTOnly] checks the token signature only, no Redis call.
//   - [RequireStrict] also requires the token's session to be active.
//
// Each guard reads the bearer token from the Authorization header, falling
// back to the access_token cookie, and injects the [goGuard.AccessResult]
// into the request context.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Tell the client which security check failed; responses stay generic.
package middleware
