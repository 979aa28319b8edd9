// Package api serves the goGuard HTTP endpoints on a chi router.
//
// Request bodies are decoded into tagged structs, unknown fields are
// rejected and go-playground/validator checks them before any engine call.
// Errors use the body {"error":{"code","message"}} with generic messages;
// diagnostic detail goes to security events only.
package api
