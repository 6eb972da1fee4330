// Package cluster provides the HTTP/JSON registration and request
// helpers a shard server and a coordinator use to find each other. It
// knows nothing about SMD's typed record model or wire protocol; it only
// carries shard-server identity (ID and address) between processes.
//
// # Architecture
//
// A coordinator holds the shard→address directory (internal/coordinator)
// and periodically health-checks every registered shard server. Each
// shard server announces itself once at startup via PostJSON to the
// coordinator's /register endpoint, then serves its shard's wire
// protocol and /health endpoint indefinitely.
//
// There is no rebalancing and no replication (spec.md §1 Non-goals): a
// shard's address is set when its server registers (a later registration
// for the same shard ID replaces it), and a shard server
// that goes unhealthy is simply marked unassigned by the coordinator's
// health monitor, not migrated.
package cluster
