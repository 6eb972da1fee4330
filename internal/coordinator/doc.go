// Package coordinator implements the directory and health-monitoring
// control plane for an SMD cluster: which shard server currently hosts
// each of the cluster's fixed N shards, and whether that server is
// still answering.
//
// # Architecture
//
// Two components cooperate:
//
//	┌─────────────────────────────────────┐
//	│            COORDINATOR               │
//	├─────────────────────────────────────┤
//	│  ShardRegistry                       │
//	│    shard ID -> server address        │
//	│    stable_hash(namespace) mod N      │
//	├─────────────────────────────────────┤
//	│  HealthMonitor                       │
//	│    periodic GET /health per shard    │
//	│    onUnhealthy -> RemoveShard         │
//	└─────────────────────────────────────┘
//
// ShardRegistry is the authoritative shard→address map (spec.md §4.3's
// "hash(namespace) mod N" routing function lives here, duplicated from
// internal/smd.StableHash so neither package depends on the other).
// HealthMonitor periodically polls every registered shard server's
// /health endpoint and, after enough consecutive failures, calls back
// into the registry to drop that shard's assignment.
//
// # No rebalancing, no replication
//
// spec.md §1's Non-goals rule out rebalancing and replication. A shard
// has at most one address at a time, set when its server registers
// (cmd/shard's startup registration call), replaced if a server
// registers again for that shard ID, and cleared by the health monitor
// when that server stops answering. There is
// no standby server to fail over to and no automatic reassignment: an
// unhealthy shard stays unassigned until its server (or a replacement
// using the same shard ID) registers again.
//
// # Consistency
//
// Every client resolves stable_hash(namespace) mod N identically
// (ShardRegistry.GetShardForKey and internal/smd.StableHash compute the
// same FNV-1a hash independently), so two clients querying the
// coordinator at different times never disagree about which shard ID
// owns a namespace — only about which address currently answers for it.
//
// # See also
//
//   - internal/cluster: registration and request HTTP helpers
//   - internal/shard: the shard server each registry entry points to
//   - cmd/coordinator: the coordinator binary built on this package
package coordinator
