package smd

import "hash/fnv"

// StableHash computes the same FNV-1a-based stable_hash(namespace) mod
// numShards the coordinator uses to assign a namespace to a shard
// (§4.3, §8 invariant: "the same namespace always hashes to the same
// shard on both client and server"). It is duplicated rather than
// imported by internal/coordinator, which computes the identical value
// independently so it does not have to depend on this client-facing
// package — the same split the teacher keeps between internal/shard and
// internal/coordinator for their own consistent-hashing code.
func StableHash(namespace string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(namespace))
	return int(h.Sum32()) % numShards
}

// Router resolves a shard ID to the address of the shard server
// currently hosting it. internal/coordinator.ShardRegistry satisfies
// this interface; tests and single-process deployments can supply a
// static map-backed implementation instead.
type Router interface {
	AddrForShard(shardID int) (string, error)
}

// StaticRouter is a fixed shardID -> address table, useful for tests
// and for single-coordinator deployments that resolve shard addresses
// once at startup rather than consulting a live registry per batch.
type StaticRouter map[int]string

// AddrForShard implements Router.
func (m StaticRouter) AddrForShard(shardID int) (string, error) {
	addr, ok := m[shardID]
	if !ok {
		return "", errUnassignedShard(shardID)
	}
	return addr, nil
}
