// Package refresh stores refresh-token families in Redis.
//
// A family is the lineage of refresh tokens issued for one login. Exactly one
// member of a family is current at any time. Rotation swaps the current member
// with a compare-and-swap executed as a single Lua script, so two concurrent
// rotations of the same token can never both succeed.
//
// # Key layout
//
//	<prefix>:rf:<familyID>  hash   family record
//	<prefix>:rm:<tokenID>   hash   member record
//	<prefix>:ru:<userID>    set    family ids owned by the user
//
// The package does not sign or parse tokens and does not know about sessions
// beyond the opaque session id stored on each record.
package refresh
