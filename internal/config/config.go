package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ShardEntry is one [[shards]] table in the topology file: the static
// listen address and backend file for one shard ID.
type ShardEntry struct {
	Listen      string `toml:"listen"`
	BackendPath string `toml:"backend_path"`
	ID          int    `toml:"id"`
}

// File is the on-disk TOML topology document: shard count and
// coordinator address for the whole cluster, plus a per-shard table
// used to pre-seed defaults for each shard server's own config.
//
// All fields are optional; an absent file, or an absent field within a
// present file, leaves the corresponding Go zero value, which callers
// then fill from environment variables or their own defaults.
type File struct {
	CoordinatorAddr string       `toml:"coordinator_addr"`
	Shards          []ShardEntry `toml:"shards"`
	ShardCount      int          `toml:"shard_count"`
}

// Load decodes the TOML topology file at path. A path of "" returns a
// zero-value File and a nil error: the topology file is optional, and
// callers fall back to environment variables and hardcoded defaults for
// every value it would otherwise have supplied.
func Load(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &f, nil
}

// shardEntry returns the topology file's entry for shardID, or the zero
// ShardEntry if none is declared.
func (f *File) shardEntry(shardID int) ShardEntry {
	for _, s := range f.Shards {
		if s.ID == shardID {
			return s
		}
	}
	return ShardEntry{ID: shardID}
}

// ShardConfig is the fully-resolved configuration for one cmd/shard
// process: which shard ID it hosts, where it listens for the wire
// protocol, where its backend's persistent file lives, and how to reach
// the coordinator to register.
type ShardConfig struct {
	CoordinatorAddr string
	Listen          string
	Public          string
	BackendPath     string
	ShardID         int
}

// ResolveShardConfig builds a ShardConfig by layering, in increasing
// priority: hardcoded defaults, the topology file's [[shards]] entry for
// SHARD_ID, then individual environment variables. This mirrors the
// override precedence the teacher's cmd/node already establishes between
// NODE_LISTEN's default and its environment variable.
//
// SHARD_ID is always required, from the environment: the topology file
// alone can't tell a freshly-started process which of its table entries
// describes itself.
func ResolveShardConfig(topologyPath string) (ShardConfig, error) {
	file, err := Load(topologyPath)
	if err != nil {
		return ShardConfig{}, err
	}

	shardID, err := mustGetenvInt("SHARD_ID")
	if err != nil {
		return ShardConfig{}, err
	}
	entry := file.shardEntry(shardID)

	cfg := ShardConfig{
		ShardID:         shardID,
		Listen:          firstNonEmpty(os.Getenv("SHARD_LISTEN"), entry.Listen, ":9090"),
		BackendPath:     firstNonEmpty(os.Getenv("SHARD_BACKEND_PATH"), entry.BackendPath, fmt.Sprintf("smd-shard-%d.sqlite", shardID)),
		CoordinatorAddr: firstNonEmpty(os.Getenv("COORDINATOR_ADDR"), file.CoordinatorAddr),
		Public:          os.Getenv("SHARD_PUBLIC_ADDR"),
	}
	if cfg.CoordinatorAddr == "" {
		return ShardConfig{}, fmt.Errorf("config: missing coordinator address (set COORDINATOR_ADDR or coordinator_addr in %s)", topologyPath)
	}
	if cfg.Public == "" {
		cfg.Public = cfg.Listen
	}
	return cfg, nil
}

// CoordinatorConfig is the fully-resolved configuration for cmd/coordinator:
// its own listen address and the cluster's fixed shard count, needed to
// validate registrations and to answer stable_hash(namespace) mod N
// queries (spec.md §4.3, §8 invariant 5).
type CoordinatorConfig struct {
	Listen    string
	NumShards int
}

// ResolveCoordinatorConfig layers the topology file's shard_count under
// the SHARD_COUNT environment variable, and the file's listen default
// (hardcoded, since the topology file has no coordinator-listen field
// distinct from coordinator_addr) under COORDINATOR_LISTEN.
func ResolveCoordinatorConfig(topologyPath string) (CoordinatorConfig, error) {
	file, err := Load(topologyPath)
	if err != nil {
		return CoordinatorConfig{}, err
	}

	numShards := file.ShardCount
	if v := os.Getenv("SHARD_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return CoordinatorConfig{}, fmt.Errorf("config: invalid SHARD_COUNT %q: %w", v, err)
		}
		numShards = n
	}
	if numShards <= 0 {
		return CoordinatorConfig{}, fmt.Errorf("config: shard count must be > 0 (set SHARD_COUNT or shard_count in %s)", topologyPath)
	}

	return CoordinatorConfig{
		Listen:    firstNonEmpty(os.Getenv("COORDINATOR_LISTEN"), ":8080"),
		NumShards: numShards,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func mustGetenvInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("config: missing required environment variable %s", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
