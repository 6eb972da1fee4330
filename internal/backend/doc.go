// Package backend defines the pluggable storage backend contract SMD
// shards host (spec.md §4.4) and the sentinel errors that implement the
// four-tier failure taxonomy of §7. See internal/backend/sqlbackend for the
// reference implementation.
package backend
