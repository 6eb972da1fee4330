// Package coordinator implements the directory and health-monitoring layer
// for an SMD cluster. See doc.go for complete package documentation.
package coordinator

import (
	"fmt"
	"sync"
)

// ShardAssignment records which shard server address is authoritative for
// one shard. SMD shards are not replicated and not rebalanced (spec.md §1
// Non-goals): a shard has at most one address at a time, set when its
// server registers and replaced if a server registers again for it.
//
// Thread Safety:
// ShardAssignment values are immutable once created; the registry returns
// copies to prevent external modification.
type ShardAssignment struct {
	// Addr is the shard server's advertised wire-protocol address.
	// cmd/shard serves its control HTTP API on the next port up.
	Addr string

	// ShardID is the unique identifier for this shard.
	// Valid range: [0, numShards).
	ShardID int
}

// ShardRegistry is the authoritative shard→address directory: it answers
// "which shard server holds namespace X" via stable_hash(namespace) mod N
// (spec.md §4.3, §8 invariant 5) and "where is shard K" via a plain map
// populated at shard-server registration time.
//
// Concurrency Model:
//   - Read operations use RLock for parallel access.
//   - Write operations (Assign/Remove) use Lock for exclusive access.
//   - All returned data is copied to prevent races.
type ShardRegistry struct {
	// assignments maps shard IDs to their current assignments. A shard
	// may be unassigned (not in map) before its server registers.
	assignments map[int]*ShardAssignment

	mu sync.RWMutex

	// numShards is the total number of shards in the cluster, fixed at
	// registry creation. There is no rebalancing, so this value never
	// changes across the registry's lifetime.
	numShards int
}

// NewShardRegistry creates a registry for a cluster with numShards shards.
// numShards must be > 0 and must match the value configured on every
// client and shard server (§4.3 invariant 5: stable_hash(ns) mod N must
// agree everywhere).
func NewShardRegistry(numShards int) *ShardRegistry {
	return &ShardRegistry{
		assignments: make(map[int]*ShardAssignment),
		numShards:   numShards,
	}
}

// AssignShard records that shardID is hosted at addr, overwriting any
// prior assignment. Called once when a shard server registers with the
// coordinator; SMD has no rebalancing, so reassignment should only happen
// when a shard server restarts at a new address.
func (r *ShardRegistry) AssignShard(shardID int, addr string) error {
	if shardID < 0 || shardID >= r.numShards {
		return fmt.Errorf("coordinator: invalid shard ID %d, must be in range [0, %d)", shardID, r.numShards)
	}
	if addr == "" {
		return fmt.Errorf("coordinator: shard address must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[shardID] = &ShardAssignment{ShardID: shardID, Addr: addr}
	return nil
}

// RemoveShard marks shardID unassigned, e.g. after its server is declared
// unhealthy. Returns an error only if shardID is out of range; removing
// an already-unassigned shard is a no-op.
func (r *ShardRegistry) RemoveShard(shardID int) error {
	if shardID < 0 || shardID >= r.numShards {
		return fmt.Errorf("coordinator: invalid shard ID %d, must be in range [0, %d)", shardID, r.numShards)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assignments, shardID)
	return nil
}

// GetAssignment returns a copy of shardID's current assignment, or nil if
// the shard has no registered server.
func (r *ShardRegistry) GetAssignment(shardID int) *ShardAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a := r.assignments[shardID]
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// GetAllAssignments returns a copy of every current shard assignment, in
// no particular order.
func (r *ShardRegistry) GetAllAssignments() []*ShardAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ShardAssignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// GetShardForKey computes stable_hash(namespace) mod N, the routing
// function spec.md §4.3 and §8 invariant 5 require to be identical on
// client and server. It does not call internal/smd.StableHash: hash.go
// carries its own copy of the same FNV-1a computation so the coordinator
// can answer routing queries without depending on the client package.
func (r *ShardRegistry) GetShardForKey(namespace string) int {
	return stableHashMod(namespace, r.numShards)
}

// GetAddrForKey resolves namespace to its shard's address in one call.
// Returns an error if the owning shard has no registered server.
func (r *ShardRegistry) GetAddrForKey(namespace string) (string, error) {
	return r.AddrForShard(r.GetShardForKey(namespace))
}

// AddrForShard resolves shardID to its hosting server's address,
// satisfying internal/smd.Router so a dispatch engine can route
// directly off the live registry instead of a snapshot.
func (r *ShardRegistry) AddrForShard(shardID int) (string, error) {
	r.mu.RLock()
	a := r.assignments[shardID]
	r.mu.RUnlock()

	if a == nil {
		return "", fmt.Errorf("coordinator: shard %d has no registered server", shardID)
	}
	return a.Addr, nil
}

// NumShards returns the fixed total shard count for the cluster.
func (r *ShardRegistry) NumShards() int {
	return r.numShards
}
