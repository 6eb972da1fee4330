package coordinator

import "hash/fnv"

// stableHashMod is the same FNV-1a-based stable_hash(ns) mod N computation
// internal/smd.StableHash performs client-side (§4.3, §8 invariant 5: the
// hash must be identical on client and server). It is duplicated here
// rather than imported so the coordinator package does not need to depend
// on the client-facing internal/smd package, mirroring the teacher's own
// choice to compute the same FNV-1a hash independently in both
// internal/shard and internal/coordinator rather than share a helper.
func stableHashMod(namespace string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(namespace))
	return int(h.Sum32()) % numShards
}
