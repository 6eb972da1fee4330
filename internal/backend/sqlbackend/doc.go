// Package sqlbackend provides the reference implementation of
// backend.Backend: one namespace per SQL table, keyed by a TEXT primary
// key column named `key`, with scheme documents cached in a
// _sys_schemes_ housekeeping table so GetScheme never has to introspect
// the table's own DDL.
package sqlbackend
