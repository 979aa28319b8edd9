// Package device tracks the devices a user signs in from.
//
// A device is identified per user by a keyed fingerprint of stable request
// headers. Registering a known fingerprint refreshes the existing record;
// an unknown fingerprint creates a new untrusted device.
//
// Two [Store] implementations are provided: [RedisStore], which keeps compact
// binary records next to sessions, and [PostgresStore] for deployments that
// want device history in a relational database. [Migrate] applies the
// embedded Postgres schema.
package device
