// Package jwt signs and verifies the access and refresh tokens issued by goGuard.
//
// Access tokens carry the user, session and ordered permission list. Refresh
// tokens carry the session, the refresh family and a per-issuance token id.
// A typ claim keeps the two kinds from being substituted for one another.
package jwt
