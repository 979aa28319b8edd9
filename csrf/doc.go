// Package csrf issues and validates fingerprint-bound double-submit tokens.
//
// A [Token] binds a random value to the client fingerprint and its issue
// time with an HMAC integrity hash. The encoded token travels in an httpOnly
// cookie; the bare value is echoed by client script in a request header.
// [Protector.Validate] runs four checks in order (fingerprint, age,
// integrity, double submit) and reports which one failed.
package csrf
